package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemVault_Layout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "drive")
	v, err := NewFileSystemVault("usb", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if v.Name() != "usb" {
		t.Errorf("Name() = %q, want usb", v.Name())
	}

	if err := v.PutSnapshot("laptop", strings.NewReader("db"), 2, 42); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	for _, name := range []string{"laptop.db", "laptop.version"} {
		if _, err := os.Stat(filepath.Join(root, "snapshots", name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	entries, _ := os.ReadDir(filepath.Join(root, "snapshots"))
	if len(entries) != 2 {
		t.Errorf("snapshots dir has %d entries, want 2 (temp files leaked?)", len(entries))
	}
}

func TestFileSystemVault_FailedPutKeepsPrevious(t *testing.T) {
	v, err := NewFileSystemVault("usb", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := v.PutSnapshot("laptop", strings.NewReader("good"), 4, 1); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	if err := v.PutSnapshot("laptop", strings.NewReader("bad"), 99, 2); err == nil {
		t.Fatal("PutSnapshot() with wrong size error = nil")
	}

	var buf strings.Builder
	if err := v.GetSnapshot("laptop", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != "good" {
		t.Errorf("GetSnapshot() = %q, want previous snapshot", buf.String())
	}
	if got, _ := v.SnapshotVersion("laptop"); got != 1 {
		t.Errorf("SnapshotVersion() = %d, want 1", got)
	}
}

func TestFileSystemVault_CorruptVersion(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("usb", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "snapshots", "laptop.version"), []byte("seven"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := v.SnapshotVersion("laptop"); err == nil {
		t.Error("SnapshotVersion() with corrupt marker error = nil")
	}
}

func TestFileSystemVault_ValidateSetupMissingRoot(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("usb", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := os.RemoveAll(filepath.Join(root, "snapshots")); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() after removing the vault error = nil")
	}
}
