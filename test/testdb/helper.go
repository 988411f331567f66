package testdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/selivandex/price-tracker/internal/adapters/database"
)

// advisoryLockKey serializes integration tests of different packages on one database
const advisoryLockKey = 720_451

// TestDB is a migrated test database, cleaned before and after each test
type TestDB struct {
	DB   *database.DB
	lock *sql.Conn
}

// Setup connects to TEST_DATABASE_URL, applies migrations and truncates history.
// Tests are skipped when TEST_DATABASE_URL is not set.
func Setup(t *testing.T) *TestDB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lock, err := conn.Conn(ctx)
	if err != nil {
		t.Fatalf("failed to reserve connection: %v", err)
	}
	if _, err := lock.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		t.Fatalf("failed to take advisory lock: %v", err)
	}

	tdb := &TestDB{DB: database.Wrap(conn), lock: lock}

	if err := database.RunMigrations(conn.DB, migrationsPath(t)); err != nil {
		tdb.Teardown(t)
		t.Fatalf("failed to run migrations: %v", err)
	}

	tdb.reset(t)

	t.Cleanup(func() {
		tdb.Teardown(t)
	})

	return tdb
}

// Teardown cleans test data, releases the lock and closes connections
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()

	tdb.reset(t)

	if tdb.lock != nil {
		if _, err := tdb.lock.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey); err != nil {
			t.Logf("warning: failed to release advisory lock: %v", err)
		}
		tdb.lock.Close()
		tdb.lock = nil
	}

	if tdb.DB != nil {
		if err := tdb.DB.Close(); err != nil {
			t.Logf("warning: failed to close database: %v", err)
		}
		tdb.DB = nil
	}
}

// reset removes observations and non-seed assets, and clears seeded icons
func (tdb *TestDB) reset(t *testing.T) {
	t.Helper()

	if tdb.DB == nil {
		return
	}

	tdb.Exec(t, "TRUNCATE price_observations")
	tdb.Exec(t, "DELETE FROM crypto_assets WHERE symbol NOT IN ('BTC', 'ETH')")
	tdb.Exec(t, "UPDATE crypto_assets SET icon_url = NULL")
}

// Exec executes SQL against the test database
func (tdb *TestDB) Exec(t *testing.T, query string, args ...interface{}) sql.Result {
	t.Helper()

	result, err := tdb.DB.DB().Exec(query, args...)
	if err != nil {
		t.Fatalf("failed to execute query: %v\nQuery: %s", err, query)
	}

	return result
}

// AssetID returns id of a registered asset
func (tdb *TestDB) AssetID(t *testing.T, symbol string) int64 {
	t.Helper()

	var id int64
	if err := tdb.DB.DB().Get(&id, "SELECT id FROM crypto_assets WHERE symbol = $1", symbol); err != nil {
		t.Fatalf("failed to find asset %s: %v", symbol, err)
	}
	return id
}

// InsertObservation stores one observation directly
func (tdb *TestDB) InsertObservation(t *testing.T, assetID int64, observedAt time.Time, price string) {
	t.Helper()

	tdb.Exec(t, `
		INSERT INTO price_observations (asset_id, observed_at, price)
		VALUES ($1, $2, $3)
	`, assetID, observedAt.UTC(), price)
}

// AssertObservationCount checks stored observation count for asset
func (tdb *TestDB) AssertObservationCount(t *testing.T, assetID int64, expected int) {
	t.Helper()

	var count int
	if err := tdb.DB.DB().Get(&count, "SELECT COUNT(*) FROM price_observations WHERE asset_id = $1", assetID); err != nil {
		t.Fatalf("failed to count observations: %v", err)
	}

	if count != expected {
		t.Errorf("expected %d observations, got %d", expected, count)
	}
}

// migrationsPath finds ./migrations by walking up to the module root
func migrationsPath(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("module root not found")
		}
		dir = parent
	}
}
