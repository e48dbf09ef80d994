package sft

import (
	"errors"
	"fmt"
	"strings"
)

// appendRetries bounds how often AppendRevision retries after losing a race
// on the (id, revision) primary key.
const appendRetries = 3

// CreateIdentity allocates a fresh identity and records revision 1 of it.
func (s *SFTService) CreateIdentity(filename, archivePath string) (*Revision, error) {
	rev := &Revision{
		ID:               s.idgen.New(),
		Revision:         1,
		OriginalFilename: filename,
		ArchivePath:      archivePath,
		Tags:             []string{},
		Timestamp:        s.clock.Now().UTC(),
	}

	if err := s.database.InsertRevision(rev); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("creating identity for %s: %w: %w", filename, ErrPersistence, err)
		}
		return nil, fmt.Errorf("creating identity for %s: %w", filename, err)
	}

	s.logger.Info("identity created", "id", rev.ID, "filename", filename, "archive_path", archivePath)
	return rev, nil
}

// AppendRevision records a new revision of the identity whose most recent
// revision has exactly this original filename. Tags and notes carry over
// from the previous revision.
func (s *SFTService) AppendRevision(filename, newArchivePath string) (*Revision, error) {
	var lastErr error
	for attempt := 1; attempt <= appendRetries; attempt++ {
		latest, err := s.database.LatestRevisionByFilename(filename)
		if err != nil {
			return nil, fmt.Errorf("finding latest revision of %s: %w", filename, err)
		}
		if latest == nil {
			return nil, fmt.Errorf("no tracked file named %s: %w", filename, ErrNotFound)
		}

		// The filename match may hit an older revision of an identity whose
		// newest revision is higher, so number from the identity's head.
		head, err := s.database.LatestRevision(latest.ID)
		if err != nil {
			return nil, fmt.Errorf("finding head revision of %s: %w", latest.ID, err)
		}
		if head == nil {
			head = latest
		}

		rev := &Revision{
			ID:               head.ID,
			Revision:         head.Revision + 1,
			OriginalFilename: filename,
			ArchivePath:      newArchivePath,
			Tags:             NormalizeTags(head.Tags),
			Notes:            head.Notes,
			Timestamp:        s.clock.Now().UTC(),
		}

		err = s.database.InsertRevision(rev)
		if err == nil {
			s.logger.Info("revision appended", "id", rev.ID, "revision", rev.Revision, "archive_path", newArchivePath)
			return rev, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("appending revision to %s: %w", head.ID, err)
		}

		s.logger.Warn("revision insert lost a race, retrying", "id", head.ID, "revision", rev.Revision, "attempt", attempt)
		lastErr = err
	}
	return nil, fmt.Errorf("appending revision of %s after %d attempts: %w", filename, appendRetries, lastErr)
}

// Resolve matches identifier against an exact identity token or, when it is
// not one, a case-insensitive substring of original filenames. No match is
// an empty result, not an error.
func (s *SFTService) Resolve(identifier string, limit, offset int) ([]*Revision, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return []*Revision{}, nil
	}

	var (
		revs []*Revision
		err  error
	)
	if id, ok := CanonicalIdentity(identifier); ok {
		revs, err = s.database.RevisionsByID(id, limit, offset)
	} else {
		revs, err = s.database.SearchRevisions(identifier, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", identifier, err)
	}
	return revs, nil
}

// ResolveUnique resolves identifier to the latest revision of exactly one
// identity. It returns ErrNotFound when nothing matches and an
// *AmbiguousError when more than one identity does.
func (s *SFTService) ResolveUnique(identifier string) (*Revision, error) {
	revs, err := s.Resolve(identifier, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("%q: %w", identifier, ErrNotFound)
	}
	if ids := distinctIDs(revs); len(ids) > 1 {
		return nil, &AmbiguousError{Identifier: identifier, Candidates: revs}
	}

	latest, err := s.database.LatestRevision(revs[0].ID)
	if err != nil {
		return nil, fmt.Errorf("loading latest revision of %s: %w", revs[0].ID, err)
	}
	if latest == nil {
		return nil, fmt.Errorf("%s: %w", revs[0].ID, ErrNotFound)
	}
	return latest, nil
}

// MutateTags adds or removes tags on a single revision. It is idempotent.
func (s *SFTService) MutateTags(id string, revision int, op TagOp, tags []string) (*Revision, error) {
	rev, err := s.database.MutateRevisionTags(id, revision, op, tags)
	if err != nil {
		return nil, fmt.Errorf("updating tags of %s revision %d: %w", id, revision, err)
	}
	s.logger.Info("tags updated", "id", id, "revision", revision, "op", op.String(), "tags", strings.Join(tags, ","))
	return rev, nil
}

// MutateNotes replaces the notes of a single revision.
func (s *SFTService) MutateNotes(id string, revision int, notes string) (*Revision, error) {
	rev, err := s.database.UpdateRevisionNotes(id, revision, notes)
	if err != nil {
		return nil, fmt.Errorf("updating notes of %s revision %d: %w", id, revision, err)
	}
	s.logger.Info("notes updated", "id", id, "revision", revision)
	return rev, nil
}

// TagLatest resolves identifier and applies op to its latest revision.
func (s *SFTService) TagLatest(identifier string, op TagOp, tags []string) (*Revision, error) {
	latest, err := s.ResolveUnique(identifier)
	if err != nil {
		return nil, err
	}
	return s.MutateTags(latest.ID, latest.Revision, op, tags)
}

// NoteLatest resolves identifier and replaces the notes of its latest revision.
func (s *SFTService) NoteLatest(identifier, notes string) (*Revision, error) {
	latest, err := s.ResolveUnique(identifier)
	if err != nil {
		return nil, err
	}
	return s.MutateNotes(latest.ID, latest.Revision, notes)
}

// History returns every revision of the identity identifier resolves to,
// newest first.
func (s *SFTService) History(identifier string) ([]*Revision, error) {
	latest, err := s.ResolveUnique(identifier)
	if err != nil {
		return nil, err
	}
	revs, err := s.database.RevisionsByID(latest.ID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing revisions of %s: %w", latest.ID, err)
	}
	return revs, nil
}

// Recent returns the latest revision of the most recently touched identities.
func (s *SFTService) Recent(limit int) ([]*Revision, error) {
	revs, err := s.database.LatestRevisions(limit, 0)
	if err != nil {
		return nil, fmt.Errorf("listing recent files: %w", err)
	}
	return revs, nil
}
