package sft_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/testutil"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestIngestNew(t *testing.T) {
	env := testutil.NewTestEnv(t)
	layout := env.Archive.Layout
	src := env.Archive.Drop(t, sft.CategoryText, "notes.txt", "hello")

	rev, err := env.Service.IngestNew(src)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", rev.OriginalFilename)
	assert.Equal(t, 1, rev.Revision)
	assert.Equal(t, filepath.Join(layout.ArchiveDir, "TEXT", "1705314600_notes.txt"), rev.ArchivePath)
	assert.Equal(t, "hello", readFile(t, rev.ArchivePath))
	assert.NoFileExists(t, src)

	link := filepath.Join(layout.SymlinkDir, "TEXT", rev.ID+".txt")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, rev.ArchivePath, target)
	assert.Equal(t, "hello", readFile(t, link))
}

func TestIngestNew_ClassifiesByExtensionOutsideCategoryFolder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	src := filepath.Join(t.TempDir(), "cover.PNG")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0644))

	rev, err := env.Service.IngestNew(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.Archive.Layout.ArchiveDir, "IMAGES", "1705314600_cover.PNG"), rev.ArchivePath)
}

func TestIngestNew_SameNameTwiceKeepsBothFiles(t *testing.T) {
	env := testutil.NewTestEnv(t)
	first, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "a.txt", "one"))
	require.NoError(t, err)
	second, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "a.txt", "two"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ArchivePath, second.ArchivePath)
	assert.Equal(t, "1705314600_a_1.txt", filepath.Base(second.ArchivePath))
	assert.Equal(t, "one", readFile(t, first.ArchivePath))
	assert.Equal(t, "two", readFile(t, second.ArchivePath))
}

func TestIngestUpdate(t *testing.T) {
	t.Run("appends a revision and repoints the symlink", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		first, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "draft.md", "v1"))
		require.NoError(t, err)
		_, err = env.Service.TagLatest(first.ID, sft.TagAdd, []string{"project:book"})
		require.NoError(t, err)

		env.Clock.Advance(time.Minute)
		upd := env.Archive.DropUpdate(t, "draft.md", "v2")
		second, err := env.Service.IngestUpdate(upd)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 2, second.Revision)
		assert.Equal(t, []string{"project:book"}, second.Tags)
		assert.Equal(t, "1705314660_draft.md", filepath.Base(second.ArchivePath))
		assert.NoFileExists(t, upd)

		link := filepath.Join(env.Archive.Layout.SymlinkDir, "TEXT", first.ID+".md")
		assert.Equal(t, "v2", readFile(t, link))
		assert.Equal(t, "v1", readFile(t, first.ArchivePath))
	})

	t.Run("keeps the category of the original ingest", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		first, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryBlobs, "notes.txt", "v1"))
		require.NoError(t, err)

		second, err := env.Service.IngestUpdate(env.Archive.DropUpdate(t, "notes.txt", "v2"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Dir(first.ArchivePath), filepath.Dir(second.ArchivePath))
		assert.Equal(t, "BLOBS", filepath.Base(filepath.Dir(second.ArchivePath)))
	})

	t.Run("unknown filename leaves the file in place", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		upd := env.Archive.DropUpdate(t, "ghost.txt", "boo")

		_, err := env.Service.IngestUpdate(upd)
		assert.ErrorIs(t, err, sft.ErrNotFound)
		assert.FileExists(t, upd)

		n, err := env.Database.CountRevisions()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSoftDelete(t *testing.T) {
	env := testutil.NewTestEnv(t)
	first, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "old.txt", "v1"))
	require.NoError(t, err)
	env.Clock.Advance(time.Minute)
	second, err := env.Service.IngestUpdate(env.Archive.DropUpdate(t, "old.txt", "v2"))
	require.NoError(t, err)

	result, err := env.Service.SoftDelete("old.txt")
	require.NoError(t, err)

	assert.True(t, result.Revision.HasTag(sft.DeletedTag))
	assert.Equal(t, 2, result.Revision.Revision)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Moved, 2)
	for _, p := range []string{first.ArchivePath, second.ArchivePath} {
		dest, ok := result.Moved[p]
		require.True(t, ok, "no trash entry for %s", p)
		assert.Equal(t, env.Archive.Layout.TrashDir, filepath.Dir(dest))
		assert.NoFileExists(t, p)
		assert.FileExists(t, dest)
	}

	// The record survives the delete.
	r1, err := env.Database.FindRevision(first.ID, 1)
	require.NoError(t, err)
	assert.False(t, r1.HasTag(sft.DeletedTag))

	_, err = env.Service.SoftDelete("old.txt")
	assert.ErrorIs(t, err, sft.ErrAlreadyDeleted)
	assert.ErrorIs(t, err, sft.ErrConflict)

	// Its projection now dangles until someone acts on it.
	report, err := env.Service.Audit(false)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, sft.AuditBroken, report.Entries[0].Status)
}

func TestSoftDelete_RelocationFailureKeepsTag(t *testing.T) {
	env := testutil.NewTestEnv(t)
	rev, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "x.txt", "x"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(rev.ArchivePath))

	result, err := env.Service.SoftDelete(rev.ID)
	require.NoError(t, err)
	assert.True(t, result.Revision.HasTag(sft.DeletedTag))
	assert.Contains(t, result.Failed, rev.ArchivePath)
	assert.True(t, env.Logger.Has("ERROR", "moving revision to trash"), env.Logger.String())
}

func TestCheckout(t *testing.T) {
	t.Run("copies the latest revision", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		_, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "essay.txt", "v1"))
		require.NoError(t, err)
		env.Clock.Advance(time.Minute)
		rev, err := env.Service.IngestUpdate(env.Archive.DropUpdate(t, "essay.txt", "v2"))
		require.NoError(t, err)

		dest, err := env.Service.Checkout("essay", env.Archive.Layout.CheckoutDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(env.Archive.Layout.CheckoutDir, "essay._._."+rev.ID+".-.-.txt"), dest)
		assert.Equal(t, "v2", readFile(t, dest))
		assert.FileExists(t, rev.ArchivePath)
	})

	t.Run("missing archive file is drift", func(t *testing.T) {
		env := testutil.NewTestEnv(t)
		rev, err := env.Service.IngestNew(env.Archive.Drop(t, sft.CategoryText, "gone.txt", "x"))
		require.NoError(t, err)
		require.NoError(t, os.Remove(rev.ArchivePath))

		_, err = env.Service.Checkout(rev.ID, env.Archive.Layout.CheckoutDir)
		assert.ErrorIs(t, err, sft.ErrIntegrityDrift)
	})
}

func TestCheckoutName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.pdf", "report._._.ID.-.-.pdf"},
		{"archive.tar.gz", "archive.tar._._.ID.-.-.gz"},
		{"Makefile", "Makefile._._.ID"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := sft.CheckoutName(&sft.Revision{ID: "ID", OriginalFilename: tt.filename})
			assert.Equal(t, tt.want, got)
		})
	}
}
