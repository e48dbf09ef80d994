package sft

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CheckoutName builds the working-copy name for a revision. The identity is
// embedded so an edited copy can be matched back to its lineage.
func CheckoutName(rev *Revision) string {
	ext := filepath.Ext(rev.OriginalFilename)
	if ext == "" {
		return rev.OriginalFilename + "._._." + rev.ID
	}
	stem := strings.TrimSuffix(rev.OriginalFilename, ext)
	return fmt.Sprintf("%s._._.%s.-.-%s", stem, rev.ID, ext)
}

// Checkout copies the latest revision of identifier into destDir and
// returns the path of the copy.
func (s *SFTService) Checkout(identifier, destDir string) (string, error) {
	latest, err := s.ResolveUnique(identifier)
	if err != nil {
		return "", err
	}
	if !s.archive.Exists(latest.ArchivePath) {
		return "", fmt.Errorf("archive file %s is missing: %w", latest.ArchivePath, ErrIntegrityDrift)
	}

	dest := filepath.Join(destDir, CheckoutName(latest))
	if err := s.archive.CopyTo(latest.ArchivePath, dest); err != nil {
		return "", fmt.Errorf("checking out %s: %w", latest.ID, err)
	}
	s.logger.Info("file checked out", "id", latest.ID, "revision", latest.Revision, "dest", dest)
	return dest, nil
}
