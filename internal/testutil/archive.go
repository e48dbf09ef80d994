package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/fs"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// TestArchive is an OSArchive rooted in a temp directory.
type TestArchive struct {
	*fs.OSArchive
	Layout config.LayoutConfig
}

// NewTestArchive creates the default layout under t.TempDir(), with the
// checkout directory inside it too.
func NewTestArchive(t *testing.T) *TestArchive {
	t.Helper()

	base := t.TempDir()
	layout := config.DefaultLayout(base)
	layout.CheckoutDir = filepath.Join(base, "checkout")

	a := fs.NewOSArchive(layout)
	if err := a.EnsureLayout(sft.DefaultCategories); err != nil {
		t.Fatalf("failed to create archive layout: %v", err)
	}
	return &TestArchive{OSArchive: a, Layout: layout}
}

// Drop writes content to <ingest>/<category>/<name> and returns the path.
func (a *TestArchive) Drop(t *testing.T, category sft.Category, name, content string) string {
	t.Helper()
	return writeFile(t, filepath.Join(a.IngestDir(category), name), content)
}

// DropUpdate writes content to <update>/<name> and returns the path.
func (a *TestArchive) DropUpdate(t *testing.T, name, content string) string {
	t.Helper()
	return writeFile(t, filepath.Join(a.Layout.UpdateDir, name), content)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
