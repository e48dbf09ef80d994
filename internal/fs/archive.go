package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// maxNameAttempts bounds the search for a free name in a directory.
const maxNameAttempts = 10000

// OSArchive is the real filesystem implementation of sft.Archive.
type OSArchive struct {
	layout config.LayoutConfig
	locks  *PathLocker
}

// NewOSArchive creates an archive rooted at the directories in layout.
func NewOSArchive(layout config.LayoutConfig) *OSArchive {
	return &OSArchive{layout: layout, locks: NewPathLocker()}
}

// Layout returns the directories the archive operates on.
func (a *OSArchive) Layout() config.LayoutConfig {
	return a.layout
}

// IngestDir returns the category folder files are dropped into for ingest.
func (a *OSArchive) IngestDir(category sft.Category) string {
	return filepath.Join(a.layout.IngestDir, string(category))
}

// EnsureLayout creates the workflow directories.
func (a *OSArchive) EnsureLayout(categories []sft.Category) error {
	dirs := []string{a.layout.IngestDir, a.layout.UpdateDir, a.layout.ArchiveDir, a.layout.SymlinkDir, a.layout.TrashDir}
	for _, c := range categories {
		dirs = append(dirs,
			a.IngestDir(c),
			filepath.Join(a.layout.ArchiveDir, string(c)),
			filepath.Join(a.layout.SymlinkDir, string(c)),
		)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// Store moves src into <archive>/<category>/ under name, or under the first
// free "<stem>_N<ext>" variant of it.
func (a *OSArchive) Store(src string, category sft.Category, name string) (string, error) {
	dir := filepath.Join(a.layout.ArchiveDir, string(category))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	dest, err := a.moveNoClobber(src, dir, name)
	if err != nil {
		return "", err
	}
	return filepath.Abs(dest)
}

// SymlinkPath returns <symlinks>/<category>/<id><ext>.
func (a *OSArchive) SymlinkPath(category sft.Category, id, ext string) string {
	return filepath.Join(a.layout.SymlinkDir, string(category), id+ext)
}

// InspectLink reports what occupies path without following it.
func (a *OSArchive) InspectLink(path string) (*sft.LinkInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &sft.LinkInfo{}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	li := &sft.LinkInfo{Exists: true}
	if info.Mode()&os.ModeSymlink == 0 {
		return li, nil
	}
	li.IsSymlink = true

	target, err := os.Readlink(path)
	if err != nil {
		return nil, fmt.Errorf("reading link %s: %w", path, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	li.Target = filepath.Clean(target)

	if _, err := os.Stat(path); err == nil {
		li.TargetExists = true
	}
	return li, nil
}

// ReplaceLink atomically points path at target. A temporary link is renamed
// over whatever was there, so readers never observe a missing entry.
func (a *OSArchive) ReplaceLink(path, target string) error {
	unlock := a.locks.Lock(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating symlink directory: %w", err)
	}

	tmp := path + ".sft-tmp"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("creating symlink: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		// Rename cannot replace a directory.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			os.Remove(tmp)
			return fmt.Errorf("replacing %s: %w", path, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("replacing %s: %w", path, err)
		}
	}
	return nil
}

// Exists reports whether a regular file exists at path.
func (a *OSArchive) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Open opens a file for reading.
func (a *OSArchive) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// MoveToTrash moves path into the trash directory, keeping its base name
// unless that name is taken.
func (a *OSArchive) MoveToTrash(path string) (string, error) {
	if err := os.MkdirAll(a.layout.TrashDir, 0755); err != nil {
		return "", fmt.Errorf("creating trash directory: %w", err)
	}
	return a.moveNoClobber(path, a.layout.TrashDir, filepath.Base(path))
}

// CopyTo copies src to dest through a temporary file in dest's directory.
func (a *OSArchive) CopyTo(src, dest string) error {
	unlock := a.locks.Lock(dest)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".sft-copy-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing copy: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("renaming copy into place: %w", err)
	}
	return nil
}

// moveNoClobber moves src into dir under the first free variant of name and
// returns the destination. A hard link claims the name atomically; when the
// filesystem cannot link (different device, no hard link support) the data
// is copied into an exclusively created file instead.
func (a *OSArchive) moveNoClobber(src, dir, name string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", src)
	}

	for i := 0; i < maxNameAttempts; i++ {
		dest := filepath.Join(dir, candidateName(name, i))

		err := os.Link(src, dest)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			err = copyExclusive(src, dest, info.Mode().Perm())
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			if err != nil {
				return "", err
			}
		}

		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("removing %s after move: %w", src, err)
		}
		return dest, nil
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// candidateName returns name for attempt 0 and "<stem>_<i><ext>" after.
func candidateName(name string, i int) string {
	if i == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return stem + "_" + strconv.Itoa(i) + ext
}

func copyExclusive(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	return nil
}

// Compile-time check that OSArchive implements sft.Archive interface
var _ sft.Archive = (*OSArchive)(nil)
