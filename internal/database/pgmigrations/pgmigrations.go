// Package pgmigrations holds the Postgres schema and applies it with goose.
package pgmigrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database/migrations"
)

//go:embed files/*.sql
var migrationFiles embed.FS

const dir = "files"

// goose keeps its base FS and dialect in package state.
var mu sync.Mutex

func setup() error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// CheckStatus compares the goose version table against the embedded files
// and reports the same verdicts as the SQLite schema check.
func CheckStatus(ctx context.Context, db *sql.DB) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(); err != nil {
		return err
	}
	latest, err := LatestVersion()
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	return migrations.Status{Current: uint(current), Latest: uint(latest)}.Err()
}

// LatestVersion returns the highest embedded migration version.
func LatestVersion() (int64, error) {
	goose.SetBaseFS(migrationFiles)
	collected, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return 0, fmt.Errorf("listing migrations: %w", err)
	}
	last, err := collected.Last()
	if err != nil {
		return 0, fmt.Errorf("no migrations embedded: %w", err)
	}
	return last.Version, nil
}
