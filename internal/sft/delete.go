package sft

import "fmt"

// DeleteResult describes a soft delete. Failed lists archive files that
// could not be moved to the trash; the record stays marked deleted.
type DeleteResult struct {
	Revision *Revision         `json:"revision" yaml:"revision"`
	Moved    map[string]string `json:"moved" yaml:"moved"`
	Failed   map[string]string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// SoftDelete tags the latest revision of an identity as deleted and moves
// the archive files of all its revisions into the trash. Relocation errors
// are logged per file and do not undo the tag.
func (s *SFTService) SoftDelete(identifier string) (*DeleteResult, error) {
	latest, err := s.ResolveUnique(identifier)
	if err != nil {
		return nil, err
	}
	if latest.HasTag(DeletedTag) {
		return nil, fmt.Errorf("%s: %w", latest.OriginalFilename, ErrAlreadyDeleted)
	}

	tagged, err := s.database.MutateRevisionTags(latest.ID, latest.Revision, TagAdd, []string{DeletedTag})
	if err != nil {
		return nil, fmt.Errorf("marking %s deleted: %w", latest.ID, err)
	}
	s.logger.Info("file marked deleted", "id", latest.ID, "revision", latest.Revision)

	result := &DeleteResult{
		Revision: tagged,
		Moved:    make(map[string]string),
		Failed:   make(map[string]string),
	}

	revs, err := s.database.RevisionsByID(latest.ID, 0, 0)
	if err != nil {
		s.logger.Error("listing revisions for trash relocation", "id", latest.ID, "error", err)
		result.Failed[latest.ArchivePath] = err.Error()
		return result, nil
	}

	for _, rev := range revs {
		if _, done := result.Moved[rev.ArchivePath]; done {
			continue
		}
		dest, err := s.archive.MoveToTrash(rev.ArchivePath)
		if err != nil {
			s.logger.Error("moving revision to trash", "id", rev.ID, "revision", rev.Revision, "path", rev.ArchivePath, "error", err)
			result.Failed[rev.ArchivePath] = err.Error()
			continue
		}
		s.logger.Info("revision moved to trash", "id", rev.ID, "revision", rev.Revision, "from", rev.ArchivePath, "to", dest)
		result.Moved[rev.ArchivePath] = dest
	}

	return result, nil
}
