package sft

import (
	"fmt"
	"sort"
	"time"
)

// recentWindow is how far back Stats counts a file as recently touched.
const recentWindow = 7 * 24 * time.Hour

// Count is a label with a tally, used for the ranked sections of Stats.
type Count struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// Stats summarizes the store.
type Stats struct {
	UniqueFiles      int     `json:"unique_files" yaml:"unique_files"`
	TotalRevisions   int     `json:"total_revisions" yaml:"total_revisions"`
	TotalLinks       int     `json:"total_links" yaml:"total_links"`
	FilesWithNotes   int     `json:"files_with_notes" yaml:"files_with_notes"`
	LinksWithNotes   int     `json:"links_with_notes" yaml:"links_with_notes"`
	RecentFiles      int     `json:"recent_files" yaml:"recent_files"`
	ByCategory       []Count `json:"by_category" yaml:"by_category"`
	TopTags          []Count `json:"top_tags" yaml:"top_tags"`
	MostRevisedFiles []Count `json:"most_revised_files" yaml:"most_revised_files"`
}

// Stats computes store-wide statistics from the latest revisions and links.
func (s *SFTService) Stats() (*Stats, error) {
	latest, err := s.database.LatestRevisions(0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing latest revisions: %w", err)
	}
	total, err := s.database.CountRevisions()
	if err != nil {
		return nil, fmt.Errorf("counting revisions: %w", err)
	}
	links, err := s.database.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}

	st := &Stats{
		UniqueFiles:    len(latest),
		TotalRevisions: total,
		TotalLinks:     len(links),
	}

	cutoff := s.clock.Now().Add(-recentWindow)
	categories := make(map[string]int)
	tags := make(map[string]int)
	revised := make([]Count, 0, len(latest))

	for _, rev := range latest {
		if rev.Notes != "" {
			st.FilesWithNotes++
		}
		if rev.Timestamp.After(cutoff) {
			st.RecentFiles++
		}
		categories[string(s.classifier.Classify(rev.ArchivePath))]++
		for _, t := range rev.Tags {
			tags[t]++
		}
		revised = append(revised, Count{Name: rev.OriginalFilename, Count: rev.Revision})
	}
	for _, l := range links {
		if l.Edge.Notes != "" {
			st.LinksWithNotes++
		}
	}

	st.ByCategory = ranked(categories, 0)
	st.TopTags = ranked(tags, 10)
	sortCounts(revised)
	if len(revised) > 5 {
		revised = revised[:5]
	}
	st.MostRevisedFiles = revised
	return st, nil
}

func ranked(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sortCounts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortCounts(c []Count) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Count != c[j].Count {
			return c[i].Count > c[j].Count
		}
		return c[i].Name < c[j].Name
	})
}
