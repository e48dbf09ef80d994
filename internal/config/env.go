package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables that override the database section. DB_* mirror the
// .env file the tracker has always read its connection settings from.
const (
	EnvDSN        = "SFT_DATABASE_DSN"
	EnvDBName     = "DB_NAME"
	EnvDBUser     = "DB_USER"
	EnvDBPassword = "DB_PASSWORD"
	EnvDBHost     = "DB_HOST"
	EnvDBPort     = "DB_PORT"
)

// ApplyEnv loads <base_dir>/.env when present, without overwriting variables
// already set in the process, and applies the database overrides to cfg.
func ApplyEnv(cfg *Config) error {
	if cfg.BaseDir != "" {
		envFile := filepath.Join(cfg.BaseDir, ".env")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	db := &cfg.Database
	for _, o := range []struct {
		key string
		dst *string
	}{
		{EnvDSN, &db.DSN},
		{EnvDBName, &db.Name},
		{EnvDBUser, &db.User},
		{EnvDBPassword, &db.Password},
		{EnvDBHost, &db.Host},
		{EnvDBPort, &db.Port},
	} {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.dst = v
		}
	}
	return nil
}

// PostgresDSN returns the connection string for a postgres database config.
// An explicit DSN is returned unchanged.
func (d DatabaseConfig) PostgresDSN() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	if d.Name == "" {
		return "", fmt.Errorf("postgres database requires dsn or name")
	}

	host := d.Host
	if host == "" {
		host = "localhost"
	}
	port := d.Port
	if port == "" {
		port = "5432"
	}
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + port,
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String(), nil
}
