// Package migrations applies the SQLite schema for the lineage store.
//
// Files follow golang-migrate naming: NNNNNN_name.up.sql / .down.sql.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

const dir = "files"

var (
	ErrNoSchema = errors.New("database has no schema")
	ErrBehind   = errors.New("schema is older than this binary")
	ErrAhead    = errors.New("schema is newer than this binary")
	ErrDirty    = errors.New("schema is dirty after a failed migration")
)

// Status is where a database's schema stands against the embedded files.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// Err is nil only for a clean schema at exactly Latest.
func (s Status) Err() error {
	switch {
	case s.Current == 0:
		return ErrNoSchema
	case s.Dirty:
		return fmt.Errorf("version %d: %w", s.Current, ErrDirty)
	case s.Current < s.Latest:
		return fmt.Errorf("version %d, latest %d: %w", s.Current, s.Latest, ErrBehind)
	case s.Current > s.Latest:
		return fmt.Errorf("version %d, latest %d: %w", s.Current, s.Latest, ErrAhead)
	}
	return nil
}

// Inspect reads the schema version recorded in db.
func Inspect(db *sql.DB) (Status, error) {
	latest, err := LatestVersion()
	if err != nil {
		return Status{}, err
	}
	m, err := open(db)
	if err != nil {
		return Status{}, err
	}
	current, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	return Status{Current: current, Latest: latest, Dirty: dirty}, nil
}

// Check returns Inspect's verdict as an error.
func Check(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// open wraps db for golang-migrate. The returned instance is never closed:
// Close would close db, which belongs to the caller.
func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// LatestVersion is the highest version among the embedded up migrations.
func LatestVersion() (uint, error) {
	entries, err := fs.ReadDir(migrationFiles, dir)
	if err != nil {
		return 0, fmt.Errorf("listing migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		mig, err := source.DefaultParse(e.Name())
		if err != nil {
			return 0, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		if mig.Direction == source.Up && mig.Version > latest {
			latest = mig.Version
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no migrations embedded")
	}
	return latest, nil
}
