package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// PostgresDSNEnv, when set, points NewTestDatabase at a Postgres server
// instead of in-memory SQLite. Each test gets its own schema.
const PostgresDSNEnv = "SFT_TEST_PG_DSN"

// NewTestDatabase returns a migrated, empty store that is closed (and, on
// Postgres, dropped) when the test ends.
func NewTestDatabase(t *testing.T) sft.Database {
	t.Helper()

	if dsn := os.Getenv(PostgresDSNEnv); dsn != "" {
		return newPostgresTestDatabase(t, dsn)
	}

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating sqlite: %v", err)
	}
	return db
}

func newPostgresTestDatabase(t *testing.T, dsn string) sft.Database {
	t.Helper()
	ctx := context.Background()

	admin, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	schema := "sft_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := admin.ExecContext(ctx, "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("dropping schema %s: %v", schema, err)
		}
	})

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parsing %s: %v", PostgresDSNEnv, err)
	}
	cfg.RuntimeParams["search_path"] = schema

	db := database.NewPostgresDatabaseFromDB(stdlib.OpenDB(*cfg))
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(fmt.Errorf("migrating schema %s: %w", schema, err))
	}
	return db
}
