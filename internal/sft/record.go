package sft

import (
	"strings"
	"time"
)

// DeletedTag marks the latest revision of a soft-deleted identity.
const DeletedTag = "status:deleted"

// Revision is one immutable snapshot of a tracked file. Only Tags and Notes
// may change after the row is written.
type Revision struct {
	ID               string    `json:"id" yaml:"id"`
	Revision         int       `json:"revision" yaml:"revision"`
	OriginalFilename string    `json:"original_filename" yaml:"original_filename"`
	ArchivePath      string    `json:"archive_path" yaml:"archive_path"`
	Tags             []string  `json:"tags" yaml:"tags"`
	Notes            string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
}

// HasTag reports whether the revision carries tag.
func (r *Revision) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Edge is a directed link between two identities.
type Edge struct {
	SourceID  string    `json:"source_id" yaml:"source_id"`
	TargetID  string    `json:"target_id" yaml:"target_id"`
	Notes     string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Tags      []string  `json:"tags" yaml:"tags"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// LinkedRevision pairs an edge with the current latest revision of the
// identity on the far side of it.
type LinkedRevision struct {
	Edge     *Edge     `json:"edge" yaml:"edge"`
	Revision *Revision `json:"revision" yaml:"revision"`
}

// LinkPair is an edge with the latest revisions of both endpoints.
type LinkPair struct {
	Edge   *Edge     `json:"edge" yaml:"edge"`
	Source *Revision `json:"source" yaml:"source"`
	Target *Revision `json:"target" yaml:"target"`
}

// TagOp selects how a tag mutation is applied.
type TagOp int

const (
	TagAdd TagOp = iota
	TagRemove
)

func (op TagOp) String() string {
	if op == TagRemove {
		return "remove"
	}
	return "add"
}

// NormalizeTags trims every tag, drops blanks and removes duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ApplyTagOp returns the tag set that results from applying op with delta to
// current. Adding a present tag or removing an absent one changes nothing.
func ApplyTagOp(current []string, op TagOp, delta []string) []string {
	result := NormalizeTags(current)
	delta = NormalizeTags(delta)

	switch op {
	case TagAdd:
		present := make(map[string]bool, len(result))
		for _, t := range result {
			present[t] = true
		}
		for _, t := range delta {
			if !present[t] {
				result = append(result, t)
				present[t] = true
			}
		}
	case TagRemove:
		drop := make(map[string]bool, len(delta))
		for _, t := range delta {
			drop[t] = true
		}
		kept := result[:0]
		for _, t := range result {
			if !drop[t] {
				kept = append(kept, t)
			}
		}
		result = kept
	}
	return result
}

// Operation is an entry in the CLI mutation log. Snapshot versions are
// operation IDs.
type Operation struct {
	ID         int64      `json:"id" yaml:"id"`
	Operation  string     `json:"operation" yaml:"operation"`
	Parameters string     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Status     string     `json:"status" yaml:"status"`
}
