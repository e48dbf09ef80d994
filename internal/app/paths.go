package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths locates the config file and the data home before any config exists.
type Paths struct {
	ConfigFile string
	Home       string
}

// ResolvePaths picks, in order: SFT_CONFIG_PATH / SFT_HOME, then the XDG
// base directories, then ~/.config/sft.toml and ~/.local/share/sft.
func ResolvePaths() (Paths, error) {
	cfg, err := firstDir("SFT_CONFIG_PATH", "XDG_CONFIG_HOME", ".config", "sft.toml")
	if err != nil {
		return Paths{}, err
	}
	home, err := firstDir("SFT_HOME", "XDG_DATA_HOME", filepath.Join(".local", "share"), "sft")
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigFile: cfg, Home: home}, nil
}

func firstDir(override, xdg, fallback, leaf string) (string, error) {
	if v := os.Getenv(override); v != "" {
		return v, nil
	}
	if v := os.Getenv(xdg); v != "" && filepath.IsAbs(v) {
		return filepath.Join(v, leaf), nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(userHome, fallback, leaf), nil
}
