package sft

import (
	"fmt"
	"path/filepath"
)

// IngestNew moves a new file into the archive, records it as a fresh
// identity and projects its symlink.
func (s *SFTService) IngestNew(path string) (*Revision, error) {
	name := filepath.Base(path)
	cat := s.classifier.Classify(path)

	archivePath, err := s.archive.Store(path, cat, s.archiveName(name))
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", path, err)
	}
	s.logger.Debug("file archived", "path", path, "archive_path", archivePath, "category", string(cat))

	rev, err := s.CreateIdentity(name, archivePath)
	if err != nil {
		return nil, err
	}

	s.project(rev, cat)
	return rev, nil
}

// IngestUpdate moves an updated file into the archive and appends a revision
// to the identity with the same original filename. The file is left in
// place when no such identity exists.
func (s *SFTService) IngestUpdate(path string) (*Revision, error) {
	name := filepath.Base(path)

	existing, err := s.database.LatestRevisionByFilename(name)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", name, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("no tracked file named %s: %w", name, ErrNotFound)
	}

	// Updates keep the category of the original ingest.
	cat := s.classifier.Classify(existing.ArchivePath)

	archivePath, err := s.archive.Store(path, cat, s.archiveName(name))
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", path, err)
	}

	rev, err := s.AppendRevision(name, archivePath)
	if err != nil {
		return nil, err
	}

	s.project(rev, cat)
	return rev, nil
}

// project is the pipeline's final step. The revision is already committed,
// so a symlink failure is logged for the auditor to pick up later.
func (s *SFTService) project(rev *Revision, cat Category) {
	linkPath := s.archive.SymlinkPath(cat, rev.ID, filepath.Ext(rev.ArchivePath))
	if err := s.archive.ReplaceLink(linkPath, rev.ArchivePath); err != nil {
		s.logger.Error("symlink creation failed", "id", rev.ID, "path", linkPath, "error", err)
		return
	}
	s.logger.Info("symlink updated", "id", rev.ID, "path", linkPath, "target", rev.ArchivePath)
}

func (s *SFTService) archiveName(name string) string {
	return fmt.Sprintf("%d_%s", s.clock.Now().Unix(), name)
}
