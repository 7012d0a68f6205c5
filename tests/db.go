package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/storage/database"
)

// testDBLockKey is the advisory lock held while a test uses the database,
// so that packages tested in parallel take turns.
const testDBLockKey = 7_050_050

const truncateTables = `TRUNCATE "user", course, lesson, "group", group_student, balance, subscription, access CASCADE`

// OpenTestDB connects to the (migrated & emptied) Postgres test database.
// The test is skipped unless TEST_DATABASE_HOST is set.
func OpenTestDB(t *testing.T) (*sqlx.DB, *core.Config) {
	t.Helper()

	conf := core.NewTestConfig()
	if os.Getenv("TEST_DATABASE_HOST") == "" {
		t.Skip("TEST_DATABASE_HOST not set, skipping Postgres test")
	}
	ctx := context.Background()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		t.Fatalf("OpenTestDB() failed: %v", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		t.Fatalf("OpenTestDB() failed: %v", err)
	}

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		t.Fatalf("OpenTestDB() failed: %v", err)
	}
	if _, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", testDBLockKey); err != nil {
		t.Fatalf("OpenTestDB() failed: %v", err)
	}
	t.Cleanup(func() {
		if _, err := db.ExecContext(ctx, truncateTables); err != nil {
			t.Errorf("truncating test database: %v", err)
		}
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", testDBLockKey)
		_ = conn.Close()
		_ = db.Close()
	})

	if err = database.Migrate(db.DB, nil, "up"); err != nil {
		t.Fatalf("OpenTestDB() failed: %v", err)
	}
	if _, err = db.ExecContext(ctx, truncateTables); err != nil {
		t.Fatalf("OpenTestDB() failed: %v", err)
	}
	return db, conf
}
