package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/encryption"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/vault"
)

var (
	// ErrNoVaults is returned by snapshot commands when no vault is configured.
	ErrNoVaults = errors.New("no vaults configured")

	// ErrNoSnapshot is returned by RestoreSnapshot when no vault holds a
	// snapshot for this host.
	ErrNoSnapshot = errors.New("no snapshot found")

	// ErrEncryptionDisabled is returned by GenerateKeys when encryption type is "none".
	ErrEncryptionDisabled = errors.New("snapshot encryption is disabled")
)

// RestoreResult describes a restored snapshot.
type RestoreResult struct {
	Vault   string `json:"vault" yaml:"vault"`
	Version int64  `json:"version" yaml:"version"`
	Path    string `json:"path" yaml:"path"`
}

// EncryptionEnabled reports whether snapshots are encrypted.
func (a *SFTApp) EncryptionEnabled() bool {
	return a.encryptor != nil
}

// GenerateKeys creates the snapshot key pair protected by passphrase.
func (a *SFTApp) GenerateKeys(passphrase string) error {
	if a.encryptor == nil {
		return ErrEncryptionDisabled
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("generating snapshot keys: %w", err)
	}
	a.logger.Info("snapshot keys generated",
		"public_key", a.cfg.Encryption.PublicKeyPath, "private_key", a.cfg.Encryption.PrivateKeyPath)
	return nil
}

// PushSnapshot records a snapshot operation; the snapshot itself is taken
// and pushed by Close, versioned with this operation's ID.
func (a *SFTApp) PushSnapshot() (int64, error) {
	if len(a.vaults) == 0 {
		return 0, ErrNoVaults
	}
	if err := a.persistOperation(); err != nil {
		return 0, err
	}
	return a.op.ID, nil
}

// pushSnapshot copies the store, encrypts the copy when encryption is
// configured and uploads it to every vault as version.
func (a *SFTApp) pushSnapshot(version int64) error {
	dir, err := os.MkdirTemp("", "sft-snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for snapshot: %w", err)
	}
	defer os.RemoveAll(dir)

	plain := filepath.Join(dir, a.cfg.HostID+".db")
	if err := a.db.BackupTo(plain); err != nil {
		if errors.Is(err, database.ErrBackupUnsupported) {
			a.logger.Info("snapshot skipped", "reason", err.Error())
			return nil
		}
		return fmt.Errorf("backing up database: %w", err)
	}

	upload := plain
	if a.encryptor != nil {
		upload = plain + ".age"
		if err := encryptFile(a.encryptor, plain, upload); err != nil {
			return err
		}
	}

	var errs []error
	for _, v := range a.vaults {
		if err := uploadSnapshot(v, a.cfg.HostID, upload, version); err != nil {
			a.logger.Error("snapshot upload failed", "vault", v.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		a.logger.Info("snapshot pushed", "vault", v.Name(), "version", version)
	}
	return errors.Join(errs...)
}

func encryptFile(enc sft.Encryptor, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing encrypted snapshot: %w", err)
	}
	return nil
}

// uploadSnapshot opens the snapshot file and uploads it to one vault.
func uploadSnapshot(v sft.Vault, hostID, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if err := v.PutSnapshot(hostID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot to vault %s: %w", v.Name(), err)
	}
	return nil
}

// RestoreSnapshot downloads the newest snapshot across all vaults, decrypts
// it with passphrase when encryption is configured and writes it to out.
// out must not exist.
func (a *SFTApp) RestoreSnapshot(passphrase, out string) (*RestoreResult, error) {
	if len(a.vaults) == 0 {
		return nil, ErrNoVaults
	}
	if _, err := os.Lstat(out); err == nil {
		return nil, fmt.Errorf("%s already exists", out)
	}

	var (
		newest  sft.Vault
		version int64
	)
	for _, v := range a.vaults {
		n, err := v.SnapshotVersion(a.cfg.HostID)
		if err != nil {
			a.logger.Warn("reading snapshot version failed", "vault", v.Name(), "error", err)
			continue
		}
		if n > version {
			newest, version = v, n
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.HostID, ErrNoSnapshot)
	}

	var dc sft.DecryptionContext
	if a.encryptor != nil {
		var err error
		if dc, err = a.encryptor.Unlock(passphrase); err != nil {
			if errors.Is(err, encryption.ErrWrongPassphrase) {
				return nil, err
			}
			return nil, fmt.Errorf("unlocking snapshot key: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(out), 0700); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".sft-restore-*")
	if err != nil {
		return nil, fmt.Errorf("creating restore file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fetchSnapshot(newest, a.cfg.HostID, dc, tmp); err != nil {
		tmp.Close()
		if errors.Is(err, vault.ErrSnapshotNotFound) {
			return nil, fmt.Errorf("%s: %w", a.cfg.HostID, ErrNoSnapshot)
		}
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing restore file: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return nil, fmt.Errorf("moving restored snapshot into place: %w", err)
	}

	a.logger.Info("snapshot restored", "vault", newest.Name(), "version", version, "path", out)
	return &RestoreResult{Vault: newest.Name(), Version: version, Path: out}, nil
}

// fetchSnapshot streams the vault copy through dc, when set, into w.
func fetchSnapshot(v sft.Vault, hostID string, dc sft.DecryptionContext, w io.Writer) error {
	if dc == nil {
		if err := v.GetSnapshot(hostID, w); err != nil {
			return fmt.Errorf("downloading snapshot from vault %s: %w", v.Name(), err)
		}
		return nil
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.GetSnapshot(hostID, pw))
	}()
	if err := dc.Decrypt(pr, w); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("restoring snapshot from vault %s: %w", v.Name(), err)
	}
	return nil
}
