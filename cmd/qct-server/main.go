package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/qct/dashboard/internal/config"
	"github.com/qct/dashboard/internal/domain/account"
	"github.com/qct/dashboard/internal/domain/imaging"
	"github.com/qct/dashboard/internal/platform/auth"
	"github.com/qct/dashboard/internal/platform/db"
	"github.com/qct/dashboard/internal/platform/logging"
	"github.com/qct/dashboard/internal/platform/middleware"
	"github.com/qct/dashboard/internal/platform/web"
	"github.com/qct/dashboard/internal/seed"
	"github.com/qct/dashboard/migrations"
)

const (
	metricsNamespace = "qct"
	bodyLimit        = "1M"
	staticPrefix     = "/static"
	imagesPrefix     = "/images"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "qct-server",
		Short: "qCT clinical reporting dashboard",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		DatabaseURL:        cfg.DatabaseURL,
		MinConns:           cfg.DBPoolSize,
		MaxConns:           cfg.MaxConns(),
		MaxConnLifetime:    cfg.DBPoolRecycle,
		ConnectTimeout:     cfg.DBConnectTimeout,
		StatementTimeoutMS: cfg.DBStatementTimeoutMS,
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationsFS(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect the configured credential list",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Parse AUTH_USERS and list usernames and roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("users")
			if !cmd.Flags().Changed("users") {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				raw = cfg.AuthUsers
			}
			return printUsers(cmd.OutOrStdout(), raw)
		},
	}
	checkCmd.Flags().String("users", "", "Credential list to check instead of AUTH_USERS")
	cmd.AddCommand(checkCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset into a mock deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("reset")
			seedValue, _ := cmd.Flags().GetInt64("seed")
			username, _ := cmd.Flags().GetString("user")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.MockData {
				return fmt.Errorf("refusing to seed: MOCK_DATA is false")
			}

			paths, err := seed.WritePlaceholders(cfg.ImagesDir)
			if err != nil {
				return err
			}
			ds, err := seed.Generate(seed.Options{
				Seed:       seedValue,
				ImagePaths: paths,
				User:       seed.User{Username: username, DisplayName: "Demo Viewer", Role: auth.DefaultRole},
			})
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			counts, err := seed.Load(ctx, pool, ds, reset)
			if err != nil {
				if errors.Is(err, seed.ErrNotEmpty) {
					return fmt.Errorf("%w; rerun with --reset to replace it", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d studies for %d patients (%d nodules, %d followups).\n",
				counts["studies"], counts["patients"], counts["qct_nodules"], counts["qct_followups"])
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "Delete existing demo rows before seeding")
	cmd.Flags().Int64("seed", 42, "Random seed")
	cmd.Flags().String("user", "demo", "Username owning the seeded access audits")
	return cmd
}

// printUsers never prints passwords.
func printUsers(out io.Writer, raw string) error {
	creds, err := auth.ParseCredentials(raw)
	if err != nil {
		return fmt.Errorf("invalid AUTH_USERS: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tDISPLAY NAME\tROLE")
	for _, id := range creds.Identities() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id.Username, id.DisplayName, id.Role)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d user(s) configured.\n", creds.Len())
	return nil
}

// app holds everything the router needs. pool may be nil, in which case
// requests do not hold a dedicated connection.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      db.Acquirer
	pinger    db.Pinger
	poolStats func() *db.PoolStats
	provider  imaging.Provider
	audit     imaging.AuditRecorder
	users     account.UserRepository
	creds     *auth.CredentialStore
	codec     *auth.SessionCodec
	metrics   *middleware.Metrics
	renderer  *web.Renderer
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Options{
		Level:          cfg.LogLevel,
		Development:    cfg.IsDev(),
		File:           cfg.LogFile,
		FileMaxSizeMB:  cfg.LogFileMaxSizeMB,
		FileMaxBackups: cfg.LogFileMaxBackups,
		FileMaxAgeDays: cfg.LogFileMaxAgeDays,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	creds, err := auth.ParseCredentials(cfg.AuthUsers)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid AUTH_USERS")
	}
	if creds.Len() == 0 {
		logger.Warn().Msg("AUTH_USERS is empty; nobody can sign in")
	}

	codec, err := auth.NewSessionCodec([]byte(cfg.SessionSecret), cfg.SessionMaxAge)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid session settings")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Int32("max_conns", cfg.MaxConns()).Msg("connected to database")

	renderer, err := web.NewRenderer(web.Templates(), imagesPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse templates")
	}

	repo := imaging.NewQueryRepoPG(pool)
	notice := &imaging.StartupNotice{}
	provider, err := imaging.NewProvider(imaging.ProviderConfig{
		DataSource: cfg.DataSource,
		MockData:   cfg.MockData,
		AllowPHI:   cfg.AllowPHI,
	}, repo, logger, notice)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to select data provider")
	}
	logger.Info().Str("data_source", cfg.DataSource).Bool("allow_phi", cfg.AllowPHI).Msg("data provider selected")

	a := &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		poolStats: func() *db.PoolStats { return db.GetPoolStats(pool) },
		provider:  provider,
		audit:     repo,
		users:     account.NewUserRepoPG(pool),
		creds:     creds,
		codec:     codec,
		renderer:  renderer,
	}
	if cfg.ReadyzDBCheck {
		a.pinger = pool
	}
	if cfg.MetricsEnabled {
		a.metrics = middleware.NewMetrics(metricsNamespace)
		a.metrics.RegisterPool(metricsNamespace, pool)
		if cfg.UsesStubProvider() {
			a.metrics.StubProvider.Set(1)
		}
	}

	e := a.router()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func (a *app) cookie() auth.CookieConfig {
	return auth.CookieConfig{
		Name:   a.cfg.SessionCookieName,
		MaxAge: a.cfg.SessionMaxAge,
		Secure: a.cfg.SessionCookieSecure,
	}
}

func (a *app) metricsPath() string {
	if a.metrics == nil {
		return ""
	}
	return a.cfg.MetricsPath
}

// skipsConnection lists requests that never read from the database. Of the
// public paths only a login submission touches it, to create the users row.
func (a *app) skipsConnection(c echo.Context) bool {
	path := c.Request().URL.Path
	if path == "/login" {
		return c.Request().Method != http.MethodPost
	}
	if auth.IsPublicPath(path) || strings.HasPrefix(path, imagesPrefix+"/") {
		return true
	}
	return path == a.metricsPath() && path != ""
}

func (a *app) router() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPFromXFFHeader()
	if a.renderer != nil {
		e.Renderer = a.renderer
	}
	e.HTTPErrorHandler = web.ErrorHandler(a.renderer, a.logger)

	e.Use(middleware.RequestID(cfg.RequestIDHeader))
	e.Use(middleware.Logger(a.logger))
	if a.metrics != nil {
		e.Use(a.metrics.Middleware())
	}
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders(staticPrefix+"/", cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     cfg.CORSMethods,
		AllowHeaders:     cfg.CORSHeaders,
		ExposeHeaders:    []string{cfg.RequestIDHeader, imaging.HeaderTotalCount, imaging.HeaderTotalPages},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(auth.RequireSession(auth.GateConfig{
		Codec:     a.codec,
		Cookie:    a.cookie(),
		LoginPath: "/login",
		Skipper:   auth.NewSkipper(a.metricsPath()),
	}))
	if a.pool != nil {
		e.Use(db.ConnMiddleware(a.pool, cfg.DBPoolTimeout, a.skipsConnection))
	}

	e.GET("/_healthz", db.HealthzHandler())
	e.GET("/_readyz", db.ReadyzHandler(a.pinger, a.poolStats, a.logger))
	if a.metrics != nil {
		e.GET(cfg.MetricsPath, a.metrics.Handler(), middleware.PrivateNetworkOnly())
	}

	e.StaticFS(staticPrefix, web.Static())
	e.Static(imagesPrefix, cfg.ImagesDir)

	accountSvc := account.NewService(a.creds, a.users, a.logger)
	imagingSvc := imaging.NewService(a.provider, a.audit, a.logger)
	if a.metrics != nil {
		accountSvc.SetAttemptCounter(a.metrics.LoginAttempts)
		imagingSvc.SetAuditCounter(a.metrics.AuditInserts)
	}

	account.NewHandler(accountSvc, a.codec, a.cookie(), a.logger).RegisterRoutes(e)
	imaging.NewHandler(imagingSvc).RegisterRoutes(e.Group(""))

	return e
}
