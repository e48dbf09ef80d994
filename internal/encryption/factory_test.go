package encryption

import (
	"path/filepath"
	"testing"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
)

func TestNewEncryptorFromConfig(t *testing.T) {
	keys := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.EncryptionConfig
		wantNil bool
		wantErr bool
	}{
		{name: "none", cfg: config.EncryptionConfig{Type: "none"}, wantNil: true},
		{name: "unset", cfg: config.EncryptionConfig{}, wantNil: true},
		{name: "test", cfg: config.EncryptionConfig{Type: "test"}},
		{
			name: "age",
			cfg: config.EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  filepath.Join(keys, "sft.pub"),
				PrivateKeyPath: filepath.Join(keys, "sft.key"),
			},
		},
		{name: "age without keys", cfg: config.EncryptionConfig{Type: "age"}, wantErr: true},
		{name: "unknown", cfg: config.EncryptionConfig{Type: "rot13"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewEncryptorFromConfig() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}
