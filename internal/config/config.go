package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data source selectors. "mock" and "database" both select the
// database-backed provider; "orthanc" selects the stub.
const (
	DataSourceMock     = "mock"
	DataSourceDatabase = "database"
	DataSourceOrthanc  = "orthanc"
)

type Config struct {
	Port    string `mapstructure:"PORT"`
	Env     string `mapstructure:"ENV"`
	AppName string `mapstructure:"APP_NAME"`

	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBPoolSize           int32         `mapstructure:"DB_POOL_SIZE"`
	DBMaxOverflow        int32         `mapstructure:"DB_MAX_OVERFLOW"`
	DBPoolTimeout        time.Duration `mapstructure:"DB_POOL_TIMEOUT"`
	DBPoolRecycle        time.Duration `mapstructure:"DB_POOL_RECYCLE"`
	DBConnectTimeout     time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`
	DBStatementTimeoutMS int           `mapstructure:"DB_STATEMENT_TIMEOUT_MS"`

	AuthUsers           string        `mapstructure:"AUTH_USERS"`
	SessionSecret       string        `mapstructure:"SESSION_SECRET"`
	SessionCookieName   string        `mapstructure:"SESSION_COOKIE_NAME"`
	SessionMaxAge       time.Duration `mapstructure:"SESSION_MAX_AGE"`
	SessionCookieSecure bool          `mapstructure:"SESSION_COOKIE_SECURE"`

	DataSource string `mapstructure:"DATA_SOURCE"`
	MockData   bool   `mapstructure:"MOCK_DATA"`
	AllowPHI   bool   `mapstructure:"ALLOW_PHI"`
	OrthancURL string `mapstructure:"ORTHANC_URL"`
	ImagesDir  string `mapstructure:"IMAGES_DIR"`

	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	CORSMethods     []string `mapstructure:"CORS_METHODS"`
	CORSHeaders     []string `mapstructure:"CORS_HEADERS"`
	RequestIDHeader string   `mapstructure:"REQUEST_ID_HEADER"`

	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogFile           string `mapstructure:"LOG_FILE"`
	LogFileMaxSizeMB  int    `mapstructure:"LOG_FILE_MAX_SIZE_MB"`
	LogFileMaxBackups int    `mapstructure:"LOG_FILE_MAX_BACKUPS"`
	LogFileMaxAgeDays int    `mapstructure:"LOG_FILE_MAX_AGE_DAYS"`

	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
	MetricsPath    string `mapstructure:"METRICS_PATH"`
	ReadyzDBCheck  bool   `mapstructure:"READYZ_DB_CHECK"`
}

var envKeys = []string{
	"PORT", "ENV", "APP_NAME",
	"DATABASE_URL", "DB_POOL_SIZE", "DB_MAX_OVERFLOW", "DB_POOL_TIMEOUT",
	"DB_POOL_RECYCLE", "DB_CONNECT_TIMEOUT", "DB_STATEMENT_TIMEOUT_MS",
	"AUTH_USERS", "SESSION_SECRET", "SESSION_COOKIE_NAME", "SESSION_MAX_AGE",
	"SESSION_COOKIE_SECURE",
	"DATA_SOURCE", "MOCK_DATA", "ALLOW_PHI", "ORTHANC_URL", "IMAGES_DIR",
	"CORS_ORIGINS", "CORS_METHODS", "CORS_HEADERS", "REQUEST_ID_HEADER",
	"LOG_LEVEL", "LOG_FILE", "LOG_FILE_MAX_SIZE_MB", "LOG_FILE_MAX_BACKUPS",
	"LOG_FILE_MAX_AGE_DAYS",
	"METRICS_ENABLED", "METRICS_PATH", "READYZ_DB_CHECK",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "qCT Dashboard")
	v.SetDefault("DB_POOL_SIZE", 5)
	v.SetDefault("DB_MAX_OVERFLOW", 10)
	v.SetDefault("DB_POOL_TIMEOUT", "30s")
	v.SetDefault("DB_POOL_RECYCLE", "30m")
	v.SetDefault("DB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("DB_STATEMENT_TIMEOUT_MS", 0)
	v.SetDefault("SESSION_COOKIE_NAME", "qct_session")
	v.SetDefault("SESSION_MAX_AGE", "8h")
	v.SetDefault("DATA_SOURCE", DataSourceMock)
	v.SetDefault("MOCK_DATA", true)
	v.SetDefault("ALLOW_PHI", false)
	v.SetDefault("ORTHANC_URL", "http://localhost:8042")
	v.SetDefault("IMAGES_DIR", "./images")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CORS_METHODS", "GET,POST")
	v.SetDefault("CORS_HEADERS", "Content-Type,X-Request-ID")
	v.SetDefault("REQUEST_ID_HEADER", "X-Request-ID")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_FILE_MAX_BACKUPS", 5)
	v.SetDefault("LOG_FILE_MAX_AGE_DAYS", 30)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")
	v.SetDefault("READYZ_DB_CHECK", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.CORSMethods = splitList(v.GetString("CORS_METHODS"))
	cfg.CORSHeaders = splitList(v.GetString("CORS_HEADERS"))
	cfg.DataSource = strings.ToLower(strings.TrimSpace(cfg.DataSource))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.SessionSecret == "" {
		log.Println("WARNING: SESSION_SECRET is empty; using an insecure development secret.")
		cfg.SessionSecret = "dev-insecure-session-secret"
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesStubProvider reports whether DATA_SOURCE selects the placeholder
// provider for the not-yet-integrated external image archive.
func (c *Config) UsesStubProvider() bool {
	return c.DataSource == DataSourceOrthanc
}

// MaxConns is the hard ceiling of the connection pool: the steady pool
// size plus the permitted overflow.
func (c *Config) MaxConns() int32 {
	return c.DBPoolSize + c.DBMaxOverflow
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.DataSource {
	case DataSourceMock, DataSourceDatabase, DataSourceOrthanc:
	default:
		return fmt.Errorf("DATA_SOURCE must be %q, %q or %q, got %q",
			DataSourceMock, DataSourceDatabase, DataSourceOrthanc, c.DataSource)
	}

	if c.IsProduction() && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required in production")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %s", c.SessionMaxAge)
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}

	if c.DBPoolSize < 1 {
		return fmt.Errorf("DB_POOL_SIZE must be at least 1, got %d", c.DBPoolSize)
	}
	if c.DBMaxOverflow < 0 {
		return fmt.Errorf("DB_MAX_OVERFLOW must not be negative, got %d", c.DBMaxOverflow)
	}
	if c.DBPoolTimeout <= 0 {
		return fmt.Errorf("DB_POOL_TIMEOUT must be positive, got %s", c.DBPoolTimeout)
	}

	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("METRICS_PATH must start with '/', got %q", c.MetricsPath)
	}
	if c.RequestIDHeader == "" {
		return fmt.Errorf("REQUEST_ID_HEADER must not be empty")
	}

	return nil
}
