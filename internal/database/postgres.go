package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database/pgmigrations"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// ErrBackupUnsupported is returned by PostgresDatabase.BackupTo. Postgres
// deployments are backed up with the server's own tooling.
var ErrBackupUnsupported = errors.New("backup is not supported for postgres databases")

// PostgresDatabase implements the Database interface on a shared Postgres
// server through the pgx stdlib driver.
type PostgresDatabase struct {
	*store
}

var postgresDialect = dialect{
	name:       "postgres",
	numbered:   true,
	forUpdate:  " FOR UPDATE",
	noLimit:    "ALL",
	lower:      "LOWER",
	constraint: postgresConstraint,
}

// NewPostgresDatabase opens a connection pool for dsn and verifies it.
func NewPostgresDatabase(ctx context.Context, dsn string) (*PostgresDatabase, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return NewPostgresDatabaseFromDB(db), nil
}

// NewPostgresDatabaseFromDB wraps an existing connection pool.
func NewPostgresDatabaseFromDB(db *sql.DB) *PostgresDatabase {
	return &PostgresDatabase{store: &store{db: db, d: postgresDialect}}
}

func postgresConstraint(err error) constraintKind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return constraintNone
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return constraintUnique
	case "23514": // check_violation
		return constraintCheck
	}
	return constraintNone
}

// CheckMigrations verifies the database schema is up-to-date.
func (p *PostgresDatabase) CheckMigrations() error {
	return pgmigrations.CheckStatus(context.Background(), p.db)
}

// Migrate applies pending schema migrations.
func (p *PostgresDatabase) Migrate() error {
	return pgmigrations.Up(context.Background(), p.db)
}

// BackupTo always fails with ErrBackupUnsupported.
func (p *PostgresDatabase) BackupTo(string) error {
	return ErrBackupUnsupported
}

// Close closes the connection pool.
func (p *PostgresDatabase) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

var _ sft.Database = (*PostgresDatabase)(nil)
