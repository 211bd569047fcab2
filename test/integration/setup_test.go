//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qct/dashboard/internal/platform/db"
	"github.com/qct/dashboard/migrations"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres: %v\n", err)
		os.Exit(1)
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupPostgres connects to QCT_TEST_DATABASE_URL when set and otherwise
// starts a throwaway container.
func setupPostgres(ctx context.Context) (*testDB, func(), error) {
	connStr := os.Getenv("QCT_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		var err error
		connStr, cleanup, err = startPostgres(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DatabaseURL: connStr, MaxConns: 10, ConnectTimeout: 10 * time.Second})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	return &testDB{Pool: pool, ConnStr: connStr}, func() {
		pool.Close()
		cleanup()
	}, nil
}

// createSchema creates an isolated schema and applies every migration to it.
func createSchema(t *testing.T, ctx context.Context, prefix string) string {
	t.Helper()
	schema := fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.New().String()[:8], "-", ""))
	if _, err := db.NewMigrator(globalDB.Pool, migrations.FS).Up(ctx, schema); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		if _, err := globalDB.Pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})
	return schema
}

// withSchemaConn acquires a connection, points its search_path at schema and
// hands the callback a context carrying it, as the per-request middleware does.
func withSchemaConn(ctx context.Context, schema string, fn func(ctx context.Context) error) error {
	conn, err := globalDB.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	defer conn.Exec(context.Background(), "RESET search_path")

	return fn(context.WithValue(ctx, db.DBConnKey, conn))
}

// seeder inserts reference rows through a schema-bound context.
type seeder struct {
	t      *testing.T
	ctx    context.Context
	siteID uuid.UUID
	n      int
}

func newSeeder(t *testing.T, ctx context.Context) *seeder {
	t.Helper()
	s := &seeder{t: t, ctx: ctx}
	clientID := s.insertID(`INSERT INTO clients (name) VALUES ('Test Client') RETURNING id`)
	s.siteID = s.insertID(`INSERT INTO sites (client_id, name, location) VALUES ($1, 'North Clinic', 'Springfield') RETURNING id`, clientID)
	return s
}

func (s *seeder) insertID(sql string, args ...interface{}) uuid.UUID {
	s.t.Helper()
	var id uuid.UUID
	if err := db.ConnFromContext(s.ctx).QueryRow(s.ctx, sql, args...).Scan(&id); err != nil {
		s.t.Fatalf("seed %q: %v", sql, err)
	}
	return id
}

func (s *seeder) seq() int {
	s.n++
	return s.n
}

func (s *seeder) patient(uid, label string) uuid.UUID {
	s.t.Helper()
	return s.insertID(`INSERT INTO patients (site_id, patient_uid, anon_label, birth_year, sex)
		VALUES ($1, $2, $3, 1958, 'F') RETURNING id`, s.siteID, uid, label)
}

func (s *seeder) study(patientID uuid.UUID, uid string, date time.Time, status, risk string, nodules int) uuid.UUID {
	s.t.Helper()
	return s.insertID(`INSERT INTO studies (patient_id, site_id, study_uid, study_date, status, overall_risk, nodule_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, patientID, s.siteID, uid, date, status, risk, nodules)
}

func (s *seeder) image(studyID uuid.UUID, seriesUID, imageUID, path string) {
	s.t.Helper()
	seriesID := s.insertID(`INSERT INTO series (study_id, series_uid, description) VALUES ($1, $2, 'Chest CT')
		ON CONFLICT (series_uid) DO UPDATE SET description = EXCLUDED.description RETURNING id`, studyID, seriesUID)
	s.insertID(`INSERT INTO images (series_id, image_uid, file_path) VALUES ($1, $2, $3) RETURNING id`, seriesID, imageUID, path)
}

func (s *seeder) summary(studyID uuid.UUID, volume float64, risk string) {
	s.t.Helper()
	s.insertID(`INSERT INTO qct_summaries (study_id, volume_total_mm3, mean_diameter_mm, vdt_days, overall_risk, lung_rads)
		VALUES ($1, $2, 6.5, 400, $3, '4A') RETURNING id`, studyID, volume, risk)
}

func (s *seeder) nodule(studyID uuid.UUID, risk string) uuid.UUID {
	s.t.Helper()
	return s.insertID(`INSERT INTO qct_nodules (study_id, nodule_uid, location, volume_mm3, diameter_mm, vdt_days, risk)
		VALUES ($1, $2, 'RUL', 120.5, 6.1, 380, $3) RETURNING id`, studyID, fmt.Sprintf("N-%03d", s.seq()), risk)
}

func (s *seeder) followup(noduleID, priorID, currentID uuid.UUID, growth float64) uuid.UUID {
	s.t.Helper()
	return s.insertID(`INSERT INTO qct_followups (nodule_id, prior_study_id, current_study_id, growth_percent, status)
		VALUES ($1, $2, $3, $4, 'growing') RETURNING id`, noduleID, priorID, currentID, growth)
}

func (s *seeder) ingestion(studyID uuid.UUID, status, message string, started time.Time) uuid.UUID {
	s.t.Helper()
	return s.insertID(`INSERT INTO ingestion_logs (study_id, status, message, started_at)
		VALUES ($1, $2, $3, $4) RETURNING id`, studyID, status, message, started)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
