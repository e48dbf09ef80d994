package sft

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// AuditStatus classifies the symlink projection of one identity.
type AuditStatus string

const (
	AuditValid     AuditStatus = "valid"
	AuditMissing   AuditStatus = "missing"
	AuditBroken    AuditStatus = "broken"
	AuditIncorrect AuditStatus = "incorrect"
)

// AuditEntry is the result for a single identity.
type AuditEntry struct {
	ID             string      `json:"id" yaml:"id"`
	Filename       string      `json:"filename" yaml:"filename"`
	Category       Category    `json:"category" yaml:"category"`
	SymlinkPath    string      `json:"symlink_path" yaml:"symlink_path"`
	ExpectedTarget string      `json:"expected_target" yaml:"expected_target"`
	ActualTarget   string      `json:"actual_target,omitempty" yaml:"actual_target,omitempty"`
	Status         AuditStatus `json:"status" yaml:"status"`
	Fixed          bool        `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	FixError       string      `json:"fix_error,omitempty" yaml:"fix_error,omitempty"`
}

// AuditReport aggregates an audit pass.
type AuditReport struct {
	FixMode   bool          `json:"fix_mode" yaml:"fix_mode"`
	Total     int           `json:"total" yaml:"total"`
	Valid     int           `json:"valid" yaml:"valid"`
	Missing   int           `json:"missing" yaml:"missing"`
	Broken    int           `json:"broken" yaml:"broken"`
	Incorrect int           `json:"incorrect" yaml:"incorrect"`
	Fixed     int           `json:"fixed" yaml:"fixed"`
	FixFailed int           `json:"fix_failed" yaml:"fix_failed"`
	Entries   []*AuditEntry `json:"entries" yaml:"entries"`
}

// Drifted returns the entries that are not valid.
func (r *AuditReport) Drifted() []*AuditEntry {
	var out []*AuditEntry
	for _, e := range r.Entries {
		if e.Status != AuditValid {
			out = append(out, e)
		}
	}
	return out
}

func (r *AuditReport) add(e *AuditEntry) {
	r.Total++
	switch e.Status {
	case AuditValid:
		r.Valid++
	case AuditMissing:
		r.Missing++
	case AuditBroken:
		r.Broken++
	case AuditIncorrect:
		r.Incorrect++
	}
	if r.FixMode && e.Status != AuditValid {
		if e.Fixed {
			r.Fixed++
		} else {
			r.FixFailed++
		}
	}
	r.Entries = append(r.Entries, e)
}

// Audit compares every identity's latest revision with its symlink
// projection. With fix set, drifted projections are recreated. A failed
// repair is recorded on its entry and never stops the pass. The store is
// only read.
func (s *SFTService) Audit(fix bool) (*AuditReport, error) {
	latest, err := s.database.LatestRevisions(0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing latest revisions: %w", err)
	}

	byCategory := make(map[Category][]*Revision)
	var order []Category
	for _, rev := range latest {
		cat := s.classifier.Classify(rev.ArchivePath)
		if _, ok := byCategory[cat]; !ok {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], rev)
	}

	var (
		mu      sync.Mutex
		entries []*AuditEntry
	)
	var g errgroup.Group
	for _, cat := range order {
		revs := byCategory[cat]
		g.Go(func() error {
			local := make([]*AuditEntry, 0, len(revs))
			for _, rev := range revs {
				e, err := s.auditOne(rev, cat, fix)
				if err != nil {
					return err
				}
				local = append(local, e)
			}
			mu.Lock()
			entries = append(entries, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.ID < b.ID
	})

	report := &AuditReport{FixMode: fix, Entries: make([]*AuditEntry, 0, len(entries))}
	for _, e := range entries {
		report.add(e)
	}

	s.logger.Info("audit finished", "total", report.Total, "valid", report.Valid, "missing", report.Missing,
		"broken", report.Broken, "incorrect", report.Incorrect, "fixed", report.Fixed, "fix_failed", report.FixFailed)
	return report, nil
}

// auditOne classifies a single identity and repairs it when asked. Only a
// failure to inspect the symlink path aborts the audit.
func (s *SFTService) auditOne(rev *Revision, cat Category, fix bool) (*AuditEntry, error) {
	linkPath := s.archive.SymlinkPath(cat, rev.ID, filepath.Ext(rev.ArchivePath))
	e := &AuditEntry{
		ID:             rev.ID,
		Filename:       rev.OriginalFilename,
		Category:       cat,
		SymlinkPath:    linkPath,
		ExpectedTarget: rev.ArchivePath,
	}

	info, err := s.archive.InspectLink(linkPath)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", linkPath, err)
	}
	e.ActualTarget = info.Target
	e.Status = classifyLink(info, rev.ArchivePath)

	if e.Status == AuditValid {
		return e, nil
	}
	s.logger.Warn("symlink drift", "id", rev.ID, "status", string(e.Status), "path", linkPath, "target", info.Target)

	if !fix {
		return e, nil
	}
	if err := s.repairLink(linkPath, rev.ArchivePath); err != nil {
		e.FixError = err.Error()
		s.logger.Error("symlink repair failed", "id", rev.ID, "path", linkPath, "error", err)
		return e, nil
	}
	e.Fixed = true
	s.logger.Info("symlink repaired", "id", rev.ID, "path", linkPath, "target", rev.ArchivePath)
	return e, nil
}

func classifyLink(info *LinkInfo, archivePath string) AuditStatus {
	switch {
	case !info.Exists:
		return AuditMissing
	case !info.IsSymlink:
		return AuditIncorrect
	case !info.TargetExists:
		return AuditBroken
	case filepath.Clean(info.Target) != filepath.Clean(archivePath):
		return AuditIncorrect
	default:
		return AuditValid
	}
}

func (s *SFTService) repairLink(linkPath, archivePath string) error {
	if !s.archive.Exists(archivePath) {
		return fmt.Errorf("archive file %s is missing: %w", archivePath, ErrIntegrityDrift)
	}
	if err := s.archive.ReplaceLink(linkPath, archivePath); err != nil {
		return fmt.Errorf("replacing symlink: %w", err)
	}
	return nil
}
