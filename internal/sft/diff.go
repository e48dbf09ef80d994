package sft

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pmezard/go-difflib/difflib"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8192

// DiffResult compares two revisions of one identity.
type DiffResult struct {
	From         *Revision `json:"from" yaml:"from"`
	To           *Revision `json:"to" yaml:"to"`
	Binary       bool      `json:"binary" yaml:"binary"`
	Unified      string    `json:"unified,omitempty" yaml:"unified,omitempty"`
	NotesChanged bool      `json:"notes_changed" yaml:"notes_changed"`
}

// Diff produces a unified diff between two revisions of the identity that
// identifier resolves to. Zero revision numbers default to the two newest
// revisions. Files containing NUL bytes are reported as binary and not
// diffed.
func (s *SFTService) Diff(identifier string, from, to int) (*DiffResult, error) {
	latest, err := s.ResolveUnique(identifier)
	if err != nil {
		return nil, err
	}

	if to == 0 {
		to = latest.Revision
	}
	if from == 0 {
		from = to - 1
	}
	if from < 1 {
		return nil, fmt.Errorf("%s has no revision before %d: %w", latest.OriginalFilename, to, ErrNotFound)
	}

	fromRev, err := s.revision(latest.ID, from)
	if err != nil {
		return nil, err
	}
	toRev, err := s.revision(latest.ID, to)
	if err != nil {
		return nil, err
	}

	result := &DiffResult{
		From:         fromRev,
		To:           toRev,
		NotesChanged: fromRev.Notes != toRev.Notes,
	}

	a, err := s.readArchived(fromRev.ArchivePath)
	if err != nil {
		return nil, err
	}
	b, err := s.readArchived(toRev.ArchivePath)
	if err != nil {
		return nil, err
	}
	if isBinary(a) || isBinary(b) {
		result.Binary = true
		return result, nil
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fmt.Sprintf("%s (revision %d)", fromRev.OriginalFilename, fromRev.Revision),
		ToFile:   fmt.Sprintf("%s (revision %d)", toRev.OriginalFilename, toRev.Revision),
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}
	result.Unified = unified
	return result, nil
}

func (s *SFTService) revision(id string, n int) (*Revision, error) {
	rev, err := s.database.FindRevision(id, n)
	if err != nil {
		return nil, fmt.Errorf("loading revision %d of %s: %w", n, id, err)
	}
	if rev == nil {
		return nil, fmt.Errorf("revision %d of %s: %w", n, id, ErrNotFound)
	}
	return rev, nil
}

func (s *SFTService) readArchived(path string) ([]byte, error) {
	rc, err := s.archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, ErrIntegrityDrift)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func isBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
