package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// FileSystemVault keeps snapshots in a directory, typically on a mounted
// backup drive:
//
//	<root>/
//	  snapshots/
//	    <hostID>.db        (latest snapshot, possibly age-encrypted)
//	    <hostID>.version   (operation id the snapshot was taken after)
type FileSystemVault struct {
	name         string
	root         string
	snapshotsDir string
}

// NewFileSystemVault creates a filesystem vault rooted at root.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshots directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, snapshotsDir: dir}, nil
}

func (v *FileSystemVault) Name() string { return v.name }

// PutSnapshot replaces the host's snapshot. The data lands before the
// version marker, so a reader never sees a version newer than its data.
func (v *FileSystemVault) PutSnapshot(hostID string, r io.Reader, size int64, version int64) error {
	if err := writeAtomic(v.snapshotPath(hostID), r, size); err != nil {
		return err
	}
	data := strconv.FormatInt(version, 10)
	if err := writeAtomic(v.versionPath(hostID), strings.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("writing version marker: %w", err)
	}
	return nil
}

// GetSnapshot copies the host's snapshot to w.
func (v *FileSystemVault) GetSnapshot(hostID string, w io.Writer) error {
	f, err := os.Open(v.snapshotPath(hostID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s in vault %s: %w", hostID, v.name, ErrSnapshotNotFound)
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns 0 when the host has never pushed.
func (v *FileSystemVault) SnapshotVersion(hostID string) (int64, error) {
	data, err := os.ReadFile(v.versionPath(hostID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version marker: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version marker: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the snapshots directory exists and accepts writes.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.snapshotsDir)
	if err != nil {
		return fmt.Errorf("vault %s not accessible: %w", v.name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.snapshotsDir)
	}

	probe, err := os.CreateTemp(v.snapshotsDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault %s not writable: %w", v.name, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (v *FileSystemVault) snapshotPath(hostID string) string {
	return filepath.Join(v.snapshotsDir, hostID+".db")
}

func (v *FileSystemVault) versionPath(hostID string) string {
	return filepath.Join(v.snapshotsDir, hostID+".version")
}

// writeAtomic writes r to a temp file beside dest, checks the byte count
// and renames it into place.
func writeAtomic(dest string, r io.Reader, expectedSize int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

var _ sft.Vault = (*FileSystemVault)(nil)
