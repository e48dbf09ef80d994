package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database/migrations"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/testutil"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/vault"
)

// newTestConfig returns a config rooted in a temp dir with a sqlite store,
// one filesystem vault and the test encryptor.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Layout.CheckoutDir = filepath.Join(base, "checkout")
	cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "usb", FSVaultRoot: filepath.Join(base, "vault")}}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	return cfg
}

func openApp(t *testing.T, cfg *config.Config, operation string, opts Options) *SFTApp {
	t.Helper()
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Clock == nil {
		opts.Clock = testutil.FixedClock()
	}
	if opts.IDs == nil {
		opts.IDs = testutil.NewStubIDGenerator()
	}
	a, err := NewSFTApp(context.Background(), cfg, operation, opts)
	if err != nil {
		t.Fatalf("NewSFTApp(%s) error = %v", operation, err)
	}
	return a
}

// initStore runs `init` against cfg and closes the app.
func initStore(t *testing.T, cfg *config.Config) {
	t.Helper()
	a := openApp(t, cfg, "Init", Options{Migrate: true})
	if err := a.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func vaultVersion(t *testing.T, cfg *config.Config) int64 {
	t.Helper()
	v, err := vault.NewFileSystemVault("usb", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	n, err := v.SnapshotVersion(cfg.HostID)
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	return n
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewSFTApp_RequiresCurrentSchema(t *testing.T) {
	cfg := newTestConfig(t)

	_, err := NewSFTApp(context.Background(), cfg, "Find", Options{Stderr: io.Discard})
	if !errors.Is(err, migrations.ErrNoSchema) {
		t.Fatalf("NewSFTApp() on an unmigrated store error = %v, want ErrNoSchema", err)
	}
}

func TestNewSFTApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "mysql"

	if _, err := NewSFTApp(context.Background(), cfg, "Find", Options{Stderr: io.Discard}); err == nil {
		t.Fatal("NewSFTApp() with unknown database type error = nil")
	}
}

func TestSFTApp_InitCreatesLayoutAndPushesSnapshot(t *testing.T) {
	cfg := newTestConfig(t)
	initStore(t, cfg)

	for _, dir := range []string{
		filepath.Join(cfg.Layout.IngestDir, "TEXT"),
		filepath.Join(cfg.Layout.ArchiveDir, "AUDIO"),
		filepath.Join(cfg.Layout.SymlinkDir, "IMAGES"),
		cfg.Layout.UpdateDir,
		cfg.Layout.TrashDir,
	} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}

	if got := vaultVersion(t, cfg); got != 1 {
		t.Errorf("vault version = %d, want 1", got)
	}
}

func TestSFTApp_ReadOnlyCommandDoesNotPush(t *testing.T) {
	cfg := newTestConfig(t)
	initStore(t, cfg)

	a := openApp(t, cfg, "Find", Options{})
	if _, err := a.Find("anything", 10, 0); err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if a.Operation().Persisted() {
		t.Error("read-only command persisted its operation")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := vaultVersion(t, cfg); got != 1 {
		t.Errorf("vault version = %d, want 1", got)
	}
}

func TestSFTApp_IngestTagAndOperationLog(t *testing.T) {
	cfg := newTestConfig(t)
	initStore(t, cfg)

	a := openApp(t, cfg, "Ingest", Options{})
	src := writeFile(t, filepath.Join(cfg.Layout.IngestDir, "TEXT", "notes.txt"), "hello")
	rev, err := a.Ingest(src, false)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if rev.Revision != 1 || rev.OriginalFilename != "notes.txt" {
		t.Errorf("Ingest() = %+v", rev)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = openApp(t, cfg, "Tag", Options{})
	if _, err := a.Tag("no-such-file", sft.TagAdd, []string{"x"}); !errors.Is(err, sft.ErrNotFound) {
		t.Errorf("Tag(missing) error = %v, want ErrNotFound", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = openApp(t, cfg, "Oplog", Options{})
	defer a.Close()
	ops, err := a.Operations(10)
	if err != nil {
		t.Fatalf("Operations() error = %v", err)
	}

	want := []struct{ name, status, params string }{
		{"Tag", StatusError, "add no-such-file x"},
		{"Ingest", StatusSuccess, src},
		{"Init", StatusSuccess, cfg.BaseDir},
	}
	if len(ops) != len(want) {
		t.Fatalf("Operations() returned %d entries, want %d", len(ops), len(want))
	}
	for i, w := range want {
		if ops[i].Operation != w.name || ops[i].Status != w.status || ops[i].Parameters != w.params {
			t.Errorf("ops[%d] = %s/%s/%q, want %s/%s/%q", i, ops[i].Operation, ops[i].Status, ops[i].Parameters, w.name, w.status, w.params)
		}
		if ops[i].FinishedAt == nil {
			t.Errorf("ops[%d].FinishedAt = nil", i)
		}
	}

	if got := vaultVersion(t, cfg); got != 3 {
		t.Errorf("vault version = %d, want 3", got)
	}
}

func TestSFTApp_RefusesWhenVaultIsAhead(t *testing.T) {
	cfg := newTestConfig(t)
	initStore(t, cfg)

	v, err := vault.NewFileSystemVault("usb", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("newer snapshot")
	if err := v.PutSnapshot(cfg.HostID, bytes.NewReader(data), int64(len(data)), 42); err != nil {
		t.Fatal(err)
	}

	_, err = NewSFTApp(context.Background(), cfg, "Tag", Options{Stderr: io.Discard})
	if !errors.Is(err, ErrStoreBehind) {
		t.Fatalf("NewSFTApp() error = %v, want ErrStoreBehind", err)
	}

	a := openApp(t, cfg, "Restore", Options{SkipVersionCheck: true})
	a.Close()
}

func TestSFTApp_SnapshotRoundTrip(t *testing.T) {
	cfg := newTestConfig(t)
	initStore(t, cfg)

	// The vault copy carries the test encryptor's header.
	v, err := vault.NewFileSystemVault("usb", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatal(err)
	}
	var raw bytes.Buffer
	if err := v.GetSnapshot(cfg.HostID, &raw); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if !bytes.HasPrefix(raw.Bytes(), []byte("SFTSNAP\x00")) {
		t.Errorf("vault snapshot is not encrypted: %q", raw.Bytes()[:16])
	}

	a := openApp(t, cfg, "Restore", Options{SkipVersionCheck: true})
	defer a.Close()

	out := filepath.Join(t.TempDir(), "restored", "store.db")
	res, err := a.RestoreSnapshot("secret", out)
	if err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	if res.Vault != "usb" || res.Version != 1 || res.Path != out {
		t.Errorf("RestoreSnapshot() = %+v", res)
	}

	restored, err := database.NewSQLiteDatabase(out)
	if err != nil {
		t.Fatalf("opening restored store: %v", err)
	}
	defer restored.Close()
	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("restored store schema: %v", err)
	}
	if n, err := restored.MaxOperationID(); err != nil || n != 1 {
		t.Errorf("restored MaxOperationID() = %d, %v, want 1", n, err)
	}

	if _, err := a.RestoreSnapshot("secret", out); err == nil {
		t.Error("RestoreSnapshot() over an existing file error = nil")
	}
}

func TestSFTApp_RestoreWithoutSnapshot(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "memory"

	a := openApp(t, cfg, "Restore", Options{})
	defer a.Close()

	_, err := a.RestoreSnapshot("", filepath.Join(t.TempDir(), "out.db"))
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("RestoreSnapshot() error = %v, want ErrNoSnapshot", err)
	}
}

func TestSFTApp_PlainSnapshotsWithoutEncryption(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "none"
	initStore(t, cfg)

	a := openApp(t, cfg, "Restore", Options{})
	defer a.Close()

	if a.EncryptionEnabled() {
		t.Error("EncryptionEnabled() = true for type none")
	}
	if err := a.GenerateKeys("pw"); !errors.Is(err, ErrEncryptionDisabled) {
		t.Errorf("GenerateKeys() error = %v, want ErrEncryptionDisabled", err)
	}

	out := filepath.Join(t.TempDir(), "plain.db")
	if _, err := a.RestoreSnapshot("", out); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	head := make([]byte, 16)
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := io.ReadFull(f, head); err != nil {
		t.Fatal(err)
	}
	if string(head) != "SQLite format 3\x00" {
		t.Errorf("restored header = %q, want sqlite header", head)
	}
}

func TestSFTApp_PushSnapshot(t *testing.T) {
	cfg := newTestConfig(t)
	initStore(t, cfg)

	a := openApp(t, cfg, "SnapshotPush", Options{})
	version, err := a.PushSnapshot()
	if err != nil {
		t.Fatalf("PushSnapshot() error = %v", err)
	}
	if version != 2 {
		t.Errorf("PushSnapshot() version = %d, want 2", version)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := vaultVersion(t, cfg); got != 2 {
		t.Errorf("vault version = %d, want 2", got)
	}

	cfg.Vaults = nil
	a = openApp(t, cfg, "SnapshotPush", Options{})
	defer a.Close()
	if _, err := a.PushSnapshot(); !errors.Is(err, ErrNoVaults) {
		t.Errorf("PushSnapshot() without vaults error = %v, want ErrNoVaults", err)
	}
}

func TestSFTApp_CheckoutDefaultsToConfiguredDir(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "memory"
	cfg.Vaults = nil

	a := openApp(t, cfg, "Ingest", Options{})
	defer a.Close()
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}

	src := writeFile(t, filepath.Join(cfg.Layout.IngestDir, "TEXT", "plan.md"), "# plan")
	rev, err := a.Ingest(src, false)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	dest, err := a.Checkout("plan", "")
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	want := filepath.Join(cfg.Layout.CheckoutDir, sft.CheckoutName(rev))
	if dest != want {
		t.Errorf("Checkout() = %q, want %q", dest, want)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "# plan" {
		t.Errorf("checked out content = %q, %v", data, err)
	}
}
