package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// ErrSnapshotNotFound is returned by GetSnapshot when the vault holds no
// snapshot for the host.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (sft.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault %q requires s3_bucket to be set", cfg.Name)
		}
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault %q requires fs_vault_root to be set", cfg.Name)
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// NewVaultsFromConfig builds every configured vault in order.
func NewVaultsFromConfig(ctx context.Context, cfgs []config.VaultConfig) ([]sft.Vault, error) {
	vaults := make([]sft.Vault, 0, len(cfgs))
	for _, c := range cfgs {
		v, err := NewVaultFromConfig(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("vault %q: %w", c.Name, err)
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}
