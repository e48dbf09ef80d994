package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/app"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

const timeLayout = "2006-01-02 15:04:05"

// printer renders command results as text, JSON or YAML.
type printer struct {
	w      io.Writer
	format string
}

// print writes v as JSON or YAML, or calls text for the text format.
func (p *printer) print(v any, text func(w io.Writer) error) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(p.w)
	}
}

func tagList(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ", ") + "]"
}

func revisionLine(r *sft.Revision) string {
	return fmt.Sprintf("%s  r%d  %s  %s%s",
		r.ID, r.Revision, r.Timestamp.UTC().Format(timeLayout), r.OriginalFilename, tagList(r.Tags))
}

// writeRevisions prints one line per revision.
func writeRevisions(w io.Writer, revs []*sft.Revision) error {
	if len(revs) == 0 {
		_, err := fmt.Fprintln(w, "No files found.")
		return err
	}
	for _, r := range revs {
		if _, err := fmt.Fprintln(w, revisionLine(r)); err != nil {
			return err
		}
	}
	return nil
}

// writeRevisionDetails prints every field of each revision, blank-line separated.
func writeRevisionDetails(w io.Writer, revs []*sft.Revision) error {
	if len(revs) == 0 {
		_, err := fmt.Fprintln(w, "No files found.")
		return err
	}
	for i, r := range revs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeField(w, "ID", r.ID)
		writeField(w, "Revision", fmt.Sprint(r.Revision))
		writeField(w, "Filename", r.OriginalFilename)
		writeField(w, "Archive", r.ArchivePath)
		writeField(w, "Timestamp", r.Timestamp.UTC().Format(timeLayout))
		writeField(w, "Tags", strings.Join(r.Tags, ", "))
		writeField(w, "Notes", r.Notes)
	}
	return nil
}

// writeField prints "label: value" aligned, skipping empty values.
func writeField(w io.Writer, label, value string) {
	if value != "" {
		fmt.Fprintf(w, "%-11s%s\n", label+":", value)
	}
}

func writeRevision(w io.Writer, verb string, r *sft.Revision) error {
	_, err := fmt.Fprintf(w, "%s %s\n", verb, revisionLine(r))
	return err
}

func edgeSuffix(e *sft.Edge) string {
	s := tagList(e.Tags)
	if e.Notes != "" {
		s += fmt.Sprintf("  %q", e.Notes)
	}
	return s
}

// writeLinked prints the far side of each edge with arrow in front.
func writeLinked(w io.Writer, arrow string, links []*sft.LinkedRevision) error {
	if len(links) == 0 {
		_, err := fmt.Fprintln(w, "No links.")
		return err
	}
	for _, l := range links {
		_, err := fmt.Fprintf(w, "%s %s (%s)%s\n", arrow, l.Revision.OriginalFilename, l.Revision.ID, edgeSuffix(l.Edge))
		if err != nil {
			return err
		}
	}
	return nil
}

func writeLinkPairs(w io.Writer, pairs []*sft.LinkPair) error {
	if len(pairs) == 0 {
		_, err := fmt.Fprintln(w, "No links.")
		return err
	}
	for _, p := range pairs {
		_, err := fmt.Fprintf(w, "%s -> %s%s\n", p.Source.OriginalFilename, p.Target.OriginalFilename, edgeSuffix(p.Edge))
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEdge(w io.Writer, verb string, e *sft.Edge) error {
	_, err := fmt.Fprintf(w, "%s %s -> %s%s\n", verb, e.SourceID, e.TargetID, edgeSuffix(e))
	return err
}

// writeTrace prints a path one hop per line, with the notes of the link
// that led to each step.
func writeTrace(w io.Writer, steps []*sft.PathStep) error {
	for i, s := range steps {
		var err error
		if i == 0 {
			_, err = fmt.Fprintf(w, "%s (%s)\n", s.Revision.OriginalFilename, s.Revision.ID)
		} else {
			note := ""
			if s.EdgeNotes != "" {
				note = fmt.Sprintf("  %q", s.EdgeNotes)
			}
			_, err = fmt.Fprintf(w, "  -> %s (%s)%s\n", s.Revision.OriginalFilename, s.Revision.ID, note)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d hop(s)\n", len(steps)-1)
	return err
}

func writeAudit(w io.Writer, r *sft.AuditReport) error {
	fmt.Fprintf(w, "Checked %d file(s): %d valid, %d missing, %d broken, %d incorrect\n",
		r.Total, r.Valid, r.Missing, r.Broken, r.Incorrect)
	if r.FixMode {
		fmt.Fprintf(w, "Repaired %d, failed %d\n", r.Fixed, r.FixFailed)
	}
	for _, e := range r.Drifted() {
		line := fmt.Sprintf("%-9s %s/%s  %s", e.Status, e.Category, e.Filename, e.SymlinkPath)
		switch {
		case e.Fixed:
			line += "  (fixed)"
		case e.FixError != "":
			line += "  (" + e.FixError + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeDelete(w io.Writer, res *sft.DeleteResult) error {
	fmt.Fprintf(w, "Deleted %s (%s)\n", res.Revision.OriginalFilename, res.Revision.ID)
	for _, src := range sortedKeys(res.Moved) {
		fmt.Fprintf(w, "  moved %s -> %s\n", src, res.Moved[src])
	}
	for _, src := range sortedKeys(res.Failed) {
		fmt.Fprintf(w, "  failed %s: %s\n", src, res.Failed[src])
	}
	return nil
}

func writeDiff(w io.Writer, d *sft.DiffResult) error {
	switch {
	case d.Binary:
		fmt.Fprintf(w, "Binary files differ: %s revision %d and %d\n", d.To.OriginalFilename, d.From.Revision, d.To.Revision)
	case d.Unified == "":
		fmt.Fprintf(w, "No content changes between revision %d and %d\n", d.From.Revision, d.To.Revision)
	default:
		fmt.Fprint(w, d.Unified)
	}
	if d.NotesChanged {
		fmt.Fprintf(w, "Notes changed:\n  - %s\n  + %s\n", d.From.Notes, d.To.Notes)
	}
	return nil
}

func writeCounts(w io.Writer, title string, counts []sft.Count) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range counts {
		fmt.Fprintf(tw, "  %s\t%d\n", c.Name, c.Count)
	}
	tw.Flush()
}

func writeStats(w io.Writer, s *sft.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Unique files:\t%d\n", s.UniqueFiles)
	fmt.Fprintf(tw, "Total revisions:\t%d\n", s.TotalRevisions)
	fmt.Fprintf(tw, "Total links:\t%d\n", s.TotalLinks)
	fmt.Fprintf(tw, "Files with notes:\t%d\n", s.FilesWithNotes)
	fmt.Fprintf(tw, "Links with notes:\t%d\n", s.LinksWithNotes)
	fmt.Fprintf(tw, "Touched in last 7 days:\t%d\n", s.RecentFiles)
	if err := tw.Flush(); err != nil {
		return err
	}
	writeCounts(w, "By category", s.ByCategory)
	writeCounts(w, "Top tags", s.TopTags)
	writeCounts(w, "Most revised", s.MostRevisedFiles)
	return nil
}

func writeOperations(w io.Writer, ops []*sft.Operation) error {
	if len(ops) == 0 {
		_, err := fmt.Fprintln(w, "No operations recorded.")
		return err
	}
	for _, op := range ops {
		duration := ""
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).String()
		}
		line := fmt.Sprintf("#%d  %-12s  %s  %-7s  %-8s  %s",
			op.ID, op.Operation, op.StartedAt.UTC().Format(timeLayout), op.Status, duration, op.Parameters)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

func writeRestore(w io.Writer, r *app.RestoreResult) error {
	_, err := fmt.Fprintf(w, "Restored snapshot version %d from vault %s to %s\n", r.Version, r.Vault, r.Path)
	return err
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
