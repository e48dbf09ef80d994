package encryption

import (
	"fmt"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// NewEncryptorFromConfig creates the snapshot Encryptor named by cfg.Type.
// Type "none" yields a nil Encryptor: snapshots are pushed as plain copies.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (sft.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewMaskEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
