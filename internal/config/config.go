package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for sft.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Categories []string         `toml:"categories"`
	Layout     LayoutConfig     `toml:"layout"`
	Database   DatabaseConfig   `toml:"database"`
	Watcher    WatcherConfig    `toml:"watcher"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// LayoutConfig holds the workflow directory roots.
type LayoutConfig struct {
	IngestDir   string `toml:"ingest_dir"`
	UpdateDir   string `toml:"update_dir"`
	ArchiveDir  string `toml:"archive_dir"`
	SymlinkDir  string `toml:"symlink_dir"`
	TrashDir    string `toml:"trash_dir"`
	CheckoutDir string `toml:"checkout_dir"`
}

// DatabaseConfig represents configuration for the metadata store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite

	// Postgres-specific fields. DSN wins over the discrete fields.
	DSN      string `toml:"dsn,omitempty"`
	Host     string `toml:"host,omitempty"`
	Port     string `toml:"port,omitempty"`
	Name     string `toml:"name,omitempty"`
	User     string `toml:"user,omitempty"`
	Password string `toml:"password,omitempty"`
	SSLMode  string `toml:"sslmode,omitempty"`
}

// WatcherConfig tunes the directory watcher.
type WatcherConfig struct {
	MaxConcurrent int      `toml:"max_concurrent"`
	SettleDelay   Duration `toml:"settle_delay"`
	Ignore        []string `toml:"ignore"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // custom endpoint, e.g. MinIO
	S3KeyID    string `toml:"s3_access_key_id,omitempty"`
	S3Secret   string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "test" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Duration is a time.Duration that reads and writes as a string ("1.5s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultWatcherIgnore skips hidden files and partial downloads.
var DefaultWatcherIgnore = []string{".*", "*.part", "*.crdownload", "*.tmp", "~$*"}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:     hostID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Categories: []string{"AUDIO", "IMAGES", "TEXT", "BLOBS"},
		Layout:     DefaultLayout(baseDir),
		Database:   DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Watcher: WatcherConfig{
			MaxConcurrent: 4,
			Ignore:        append([]string(nil), DefaultWatcherIgnore...),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "sft.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "sft.key"),
		},
	}
}

// DefaultLayout returns the workflow directories under baseDir.
func DefaultLayout(baseDir string) LayoutConfig {
	home, err := os.UserHomeDir()
	checkout := filepath.Join(home, "Desktop")
	if err != nil {
		checkout = filepath.Join(baseDir, "checkout")
	}
	return LayoutConfig{
		IngestDir:   filepath.Join(baseDir, "_INGEST"),
		UpdateDir:   filepath.Join(baseDir, "_UPDATE"),
		ArchiveDir:  filepath.Join(baseDir, "SovereignArchive"),
		SymlinkDir:  filepath.Join(baseDir, "SFT_Symlink"),
		TrashDir:    filepath.Join(baseDir, "_TRASH"),
		CheckoutDir: checkout,
	}
}

// Validate checks the fields that the factories cannot default.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	switch c.Database.Type {
	case "sqlite", "memory", "postgres":
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}
	switch c.Encryption.Type {
	case "", "age", "test", "none":
	default:
		return fmt.Errorf("unknown encryption type: %q", c.Encryption.Type)
	}
	if c.Watcher.MaxConcurrent < 0 {
		return fmt.Errorf("watcher.max_concurrent must not be negative")
	}
	return nil
}

// fillDefaults fills layout roots left empty in the file.
func (c *Config) fillDefaults() {
	def := DefaultLayout(c.BaseDir)
	l := &c.Layout
	for _, pair := range []struct {
		dst *string
		val string
	}{
		{&l.IngestDir, def.IngestDir},
		{&l.UpdateDir, def.UpdateDir},
		{&l.ArchiveDir, def.ArchiveDir},
		{&l.SymlinkDir, def.SymlinkDir},
		{&l.TrashDir, def.TrashDir},
		{&l.CheckoutDir, def.CheckoutDir},
	} {
		if *pair.dst == "" {
			*pair.dst = pair.val
		}
	}
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Watcher.MaxConcurrent == 0 {
		c.Watcher.MaxConcurrent = 4
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
