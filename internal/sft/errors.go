package sft

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the service layer. Callers check them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrAmbiguous       = errors.New("ambiguous identifier")
	ErrConflict        = errors.New("conflict")
	ErrSelfLink        = errors.New("cannot link a file to itself")
	ErrDegenerateQuery = errors.New("start and end resolve to the same file")
	ErrNoPathFound     = errors.New("no path found")
	ErrIntegrityDrift  = errors.New("integrity drift")
	ErrPersistence     = errors.New("persistence error")

	// ErrDuplicateEdge and ErrAlreadyDeleted are conflicts: errors.Is(err, ErrConflict) holds for both.
	ErrDuplicateEdge  = fmt.Errorf("link already exists: %w", ErrConflict)
	ErrAlreadyDeleted = fmt.Errorf("already deleted: %w", ErrConflict)
)

// AmbiguousError is returned when an identifier matches revisions of more than
// one identity. Candidates holds every matching revision so the caller can
// ask the user to pick one.
type AmbiguousError struct {
	Identifier string
	Candidates []*Revision
}

func (e *AmbiguousError) Error() string {
	ids := distinctIDs(e.Candidates)
	return fmt.Sprintf("identifier %q matches %d files: %s", e.Identifier, len(ids), strings.Join(ids, ", "))
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

func distinctIDs(revs []*Revision) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range revs {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	return ids
}
