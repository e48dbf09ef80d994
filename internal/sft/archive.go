package sft

import "io"

// LinkInfo describes what occupies a symlink projection path.
type LinkInfo struct {
	Exists       bool   // something is at the path
	IsSymlink    bool   // the entry is a symbolic link
	Target       string // absolute link target, when IsSymlink
	TargetExists bool   // the link target resolves
}

// Archive is the physical side of the tracker: the category-partitioned
// archive tree, the symlink projection, the trash and checkout areas.
// Implementations serialize mutations of a single symlink path.
type Archive interface {
	// EnsureLayout creates the ingest, update, archive, symlink and trash
	// directories for the given categories.
	EnsureLayout(categories []Category) error

	// Store moves src into the archive category directory under name and
	// returns the absolute archive path. An existing file is never
	// overwritten; a numeric suffix is added instead.
	Store(src string, category Category, name string) (string, error)

	// SymlinkPath returns where the projection for an identity lives.
	SymlinkPath(category Category, id, ext string) string

	// InspectLink reports what is at a symlink path without following it.
	InspectLink(path string) (*LinkInfo, error)

	// ReplaceLink points path at target, removing any existing entry and
	// creating the parent directory.
	ReplaceLink(path, target string) error

	// Exists reports whether a regular file exists at path.
	Exists(path string) bool

	// Open opens an archived file for reading.
	Open(path string) (io.ReadCloser, error)

	// MoveToTrash relocates path into the trash directory and returns the
	// new location.
	MoveToTrash(path string) (string, error)

	// CopyTo copies src to dest, creating dest's directory.
	CopyTo(src, dest string) error
}
