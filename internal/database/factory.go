package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string) (sft.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		db, err := NewSQLiteDatabase(filepath.Join(cfg.DataDir, hostID+".db"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, err
		}
		db, err := NewPostgresDatabase(context.Background(), dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
