package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// constraintKind classifies a driver error raised by a table constraint.
type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintUnique
	constraintCheck
)

// dialect captures the few places where SQLite and Postgres disagree.
type dialect struct {
	name       string
	numbered   bool   // $1, $2 placeholders instead of ?
	forUpdate  string // row lock suffix for read-modify-write
	noLimit    string // LIMIT value meaning "all rows"
	lower      string // SQL function folding case over all of Unicode
	constraint func(error) constraintKind
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// store implements the data methods of sft.Database on top of database/sql.
// Backends embed it and add their own lifecycle methods.
type store struct {
	db *sql.DB
	d  dialect
}

const revisionColumns = "id, revision, original_filename, archive_path, tags, notes, created_at"

// latestOf restricts alias to the highest revision of its identity.
func latestOf(alias string) string {
	return fmt.Sprintf("%[1]s.revision = (SELECT MAX(m.revision) FROM file_lineage m WHERE m.id = %[1]s.id)", alias)
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// q rewrites ? placeholders for dialects that number them.
func (s *store) q(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// paginate appends LIMIT/OFFSET when either is positive.
func (s *store) paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else {
		query += " LIMIT " + s.d.noLimit
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}

func (s *store) fail(action string, err error) error {
	return fmt.Errorf("%s: %w: %w", action, sft.ErrPersistence, err)
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(sft.NormalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decoding tags %q: %w", raw, err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// escapeLike escapes the LIKE wildcards so a search term matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type revisionRow struct {
	rev  sft.Revision
	tags string
}

func (r *revisionRow) dest() []any {
	return []any{&r.rev.ID, &r.rev.Revision, &r.rev.OriginalFilename, &r.rev.ArchivePath, &r.tags, &r.rev.Notes, &r.rev.Timestamp}
}

func (r *revisionRow) revision() (*sft.Revision, error) {
	tags, err := decodeTags(r.tags)
	if err != nil {
		return nil, err
	}
	rev := r.rev
	rev.Tags = tags
	rev.Timestamp = rev.Timestamp.UTC()
	return &rev, nil
}

type edgeRow struct {
	edge sft.Edge
	tags string
}

const edgeColumns = "source_id, target_id, notes, tags, created_at"

func (r *edgeRow) dest() []any {
	return []any{&r.edge.SourceID, &r.edge.TargetID, &r.edge.Notes, &r.tags, &r.edge.CreatedAt}
}

func (r *edgeRow) toEdge() (*sft.Edge, error) {
	tags, err := decodeTags(r.tags)
	if err != nil {
		return nil, err
	}
	e := r.edge
	e.Tags = tags
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *store) queryRevision(qr querier, query string, args ...any) (*sft.Revision, error) {
	var row revisionRow
	err := qr.QueryRow(s.q(query), args...).Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.revision()
}

func (s *store) queryRevisions(query string, args ...any) ([]*sft.Revision, error) {
	rows, err := s.db.Query(s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*sft.Revision{}
	for rows.Next() {
		var row revisionRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		rev, err := row.revision()
		if err != nil {
			return nil, err
		}
		result = append(result, rev)
	}
	return result, rows.Err()
}

// Revision operations

func (s *store) InsertRevision(rev *sft.Revision) error {
	tags, err := encodeTags(rev.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(s.q(`INSERT INTO file_lineage (`+revisionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rev.ID, rev.Revision, rev.OriginalFilename, rev.ArchivePath, tags, rev.Notes, rev.Timestamp.UTC())
	if err != nil {
		if s.d.constraint(err) == constraintUnique {
			return fmt.Errorf("revision %s/%d already exists: %w", rev.ID, rev.Revision, sft.ErrConflict)
		}
		return s.fail("inserting revision", err)
	}
	return nil
}

func (s *store) FindRevision(id string, revision int) (*sft.Revision, error) {
	rev, err := s.queryRevision(s.db, `SELECT `+revisionColumns+` FROM file_lineage WHERE id = ? AND revision = ?`, id, revision)
	if err != nil {
		return nil, s.fail("finding revision", err)
	}
	return rev, nil
}

func (s *store) LatestRevision(id string) (*sft.Revision, error) {
	rev, err := s.queryRevision(s.db, `SELECT `+revisionColumns+` FROM file_lineage WHERE id = ? ORDER BY revision DESC LIMIT 1`, id)
	if err != nil {
		return nil, s.fail("finding latest revision", err)
	}
	return rev, nil
}

func (s *store) LatestRevisionByFilename(filename string) (*sft.Revision, error) {
	rev, err := s.queryRevision(s.db, `SELECT `+revisionColumns+` FROM file_lineage WHERE original_filename = ? ORDER BY created_at DESC, revision DESC LIMIT 1`, filename)
	if err != nil {
		return nil, s.fail("finding revision by filename", err)
	}
	return rev, nil
}

func (s *store) RevisionsByID(id string, limit, offset int) ([]*sft.Revision, error) {
	query, args := s.paginate(`SELECT `+revisionColumns+` FROM file_lineage WHERE id = ? ORDER BY revision DESC`, []any{id}, limit, offset)
	revs, err := s.queryRevisions(query, args...)
	if err != nil {
		return nil, s.fail("listing revisions", err)
	}
	return revs, nil
}

func (s *store) SearchRevisions(substr string, limit, offset int) ([]*sft.Revision, error) {
	pattern := "%" + escapeLike(strings.ToLower(substr)) + "%"
	query, args := s.paginate(`SELECT `+revisionColumns+` FROM file_lineage WHERE `+s.d.lower+`(original_filename) LIKE ? ESCAPE '\' ORDER BY revision DESC, created_at DESC, id`, []any{pattern}, limit, offset)
	revs, err := s.queryRevisions(query, args...)
	if err != nil {
		return nil, s.fail("searching revisions", err)
	}
	return revs, nil
}

func (s *store) LatestRevisions(limit, offset int) ([]*sft.Revision, error) {
	query, args := s.paginate(`SELECT `+prefixed("fl", revisionColumns)+` FROM file_lineage fl WHERE `+latestOf("fl")+` ORDER BY fl.created_at DESC, fl.id`, nil, limit, offset)
	revs, err := s.queryRevisions(query, args...)
	if err != nil {
		return nil, s.fail("listing latest revisions", err)
	}
	return revs, nil
}

func (s *store) MutateRevisionTags(id string, revision int, op sft.TagOp, tags []string) (*sft.Revision, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, s.fail("beginning transaction", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(s.q(`SELECT tags FROM file_lineage WHERE id = ? AND revision = ?`+s.d.forUpdate), id, revision).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("revision %s/%d: %w", id, revision, sft.ErrNotFound)
		}
		return nil, s.fail("reading tags", err)
	}
	current, err := decodeTags(raw)
	if err != nil {
		return nil, s.fail("reading tags", err)
	}
	encoded, err := encodeTags(sft.ApplyTagOp(current, op, tags))
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(s.q(`UPDATE file_lineage SET tags = ? WHERE id = ? AND revision = ?`), encoded, id, revision); err != nil {
		return nil, s.fail("updating tags", err)
	}

	rev, err := s.queryRevision(tx, `SELECT `+revisionColumns+` FROM file_lineage WHERE id = ? AND revision = ?`, id, revision)
	if err != nil {
		return nil, s.fail("reading updated revision", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.fail("committing tag update", err)
	}
	return rev, nil
}

func (s *store) UpdateRevisionNotes(id string, revision int, notes string) (*sft.Revision, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, s.fail("beginning transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(s.q(`UPDATE file_lineage SET notes = ? WHERE id = ? AND revision = ?`), notes, id, revision)
	if err != nil {
		return nil, s.fail("updating notes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, s.fail("updating notes", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("revision %s/%d: %w", id, revision, sft.ErrNotFound)
	}

	rev, err := s.queryRevision(tx, `SELECT `+revisionColumns+` FROM file_lineage WHERE id = ? AND revision = ?`, id, revision)
	if err != nil {
		return nil, s.fail("reading updated revision", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.fail("committing notes update", err)
	}
	return rev, nil
}

func (s *store) CountRevisions() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM file_lineage`).Scan(&n); err != nil {
		return 0, s.fail("counting revisions", err)
	}
	return n, nil
}

// Link operations

func (s *store) InsertEdge(edge *sft.Edge) error {
	tags, err := encodeTags(edge.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(s.q(`INSERT INTO links (`+edgeColumns+`) VALUES (?, ?, ?, ?, ?)`),
		edge.SourceID, edge.TargetID, edge.Notes, tags, edge.CreatedAt.UTC())
	if err != nil {
		switch s.d.constraint(err) {
		case constraintUnique:
			return fmt.Errorf("%s -> %s: %w", edge.SourceID, edge.TargetID, sft.ErrDuplicateEdge)
		case constraintCheck:
			return fmt.Errorf("%s: %w", edge.SourceID, sft.ErrSelfLink)
		}
		return s.fail("inserting link", err)
	}
	return nil
}

func (s *store) findEdge(qr querier, sourceID, targetID string) (*sft.Edge, error) {
	var row edgeRow
	err := qr.QueryRow(s.q(`SELECT `+edgeColumns+` FROM links WHERE source_id = ? AND target_id = ?`), sourceID, targetID).Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEdge()
}

func (s *store) FindEdge(sourceID, targetID string) (*sft.Edge, error) {
	edge, err := s.findEdge(s.db, sourceID, targetID)
	if err != nil {
		return nil, s.fail("finding link", err)
	}
	return edge, nil
}

func (s *store) DeleteEdge(sourceID, targetID string) (bool, error) {
	res, err := s.db.Exec(s.q(`DELETE FROM links WHERE source_id = ? AND target_id = ?`), sourceID, targetID)
	if err != nil {
		return false, s.fail("deleting link", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("deleting link", err)
	}
	return n > 0, nil
}

func (s *store) MutateEdgeTags(sourceID, targetID string, op sft.TagOp, tags []string) (*sft.Edge, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, s.fail("beginning transaction", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(s.q(`SELECT tags FROM links WHERE source_id = ? AND target_id = ?`+s.d.forUpdate), sourceID, targetID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link %s -> %s: %w", sourceID, targetID, sft.ErrNotFound)
		}
		return nil, s.fail("reading link tags", err)
	}
	current, err := decodeTags(raw)
	if err != nil {
		return nil, s.fail("reading link tags", err)
	}
	encoded, err := encodeTags(sft.ApplyTagOp(current, op, tags))
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(s.q(`UPDATE links SET tags = ? WHERE source_id = ? AND target_id = ?`), encoded, sourceID, targetID); err != nil {
		return nil, s.fail("updating link tags", err)
	}

	edge, err := s.findEdge(tx, sourceID, targetID)
	if err != nil {
		return nil, s.fail("reading updated link", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.fail("committing link tag update", err)
	}
	return edge, nil
}

func (s *store) linkedRevisions(query string, args ...any) ([]*sft.LinkedRevision, error) {
	rows, err := s.db.Query(s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*sft.LinkedRevision{}
	for rows.Next() {
		var e edgeRow
		var r revisionRow
		if err := rows.Scan(append(e.dest(), r.dest()...)...); err != nil {
			return nil, err
		}
		edge, err := e.toEdge()
		if err != nil {
			return nil, err
		}
		rev, err := r.revision()
		if err != nil {
			return nil, err
		}
		result = append(result, &sft.LinkedRevision{Edge: edge, Revision: rev})
	}
	return result, rows.Err()
}

func (s *store) OutgoingEdges(sourceID string) ([]*sft.LinkedRevision, error) {
	links, err := s.linkedRevisions(`SELECT `+prefixed("l", edgeColumns)+`, `+prefixed("t", revisionColumns)+
		` FROM links l JOIN file_lineage t ON t.id = l.target_id`+
		` WHERE l.source_id = ? AND `+latestOf("t")+
		` ORDER BY t.original_filename, t.revision DESC, l.created_at`, sourceID)
	if err != nil {
		return nil, s.fail("listing outgoing links", err)
	}
	return links, nil
}

func (s *store) IncomingEdges(targetID string) ([]*sft.LinkedRevision, error) {
	links, err := s.linkedRevisions(`SELECT `+prefixed("l", edgeColumns)+`, `+prefixed("src", revisionColumns)+
		` FROM links l JOIN file_lineage src ON src.id = l.source_id`+
		` WHERE l.target_id = ? AND `+latestOf("src")+
		` ORDER BY src.created_at DESC, src.id`, targetID)
	if err != nil {
		return nil, s.fail("listing incoming links", err)
	}
	return links, nil
}

func (s *store) AllEdges() ([]*sft.LinkPair, error) {
	rows, err := s.db.Query(`SELECT ` + prefixed("l", edgeColumns) + `, ` + prefixed("src", revisionColumns) + `, ` + prefixed("t", revisionColumns) +
		` FROM links l` +
		` JOIN file_lineage src ON src.id = l.source_id` +
		` JOIN file_lineage t ON t.id = l.target_id` +
		` WHERE ` + latestOf("src") + ` AND ` + latestOf("t") +
		` ORDER BY src.original_filename, t.original_filename, l.created_at`)
	if err != nil {
		return nil, s.fail("listing links", err)
	}
	defer rows.Close()

	result := []*sft.LinkPair{}
	for rows.Next() {
		var e edgeRow
		var src, dst revisionRow
		dest := append(e.dest(), src.dest()...)
		if err := rows.Scan(append(dest, dst.dest()...)...); err != nil {
			return nil, s.fail("listing links", err)
		}
		pair := &sft.LinkPair{}
		if pair.Edge, err = e.toEdge(); err != nil {
			return nil, s.fail("listing links", err)
		}
		if pair.Source, err = src.revision(); err != nil {
			return nil, s.fail("listing links", err)
		}
		if pair.Target, err = dst.revision(); err != nil {
			return nil, s.fail("listing links", err)
		}
		result = append(result, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("listing links", err)
	}
	return result, nil
}

// Operation log

func (s *store) CreateOperation(operation, parameters string, startedAt time.Time) (*sft.Operation, error) {
	op := &sft.Operation{
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt.UTC(),
		Status:     "started",
	}
	err := s.db.QueryRow(s.q(`INSERT INTO operations (operation, parameters, started_at, status) VALUES (?, ?, ?, ?) RETURNING id`),
		op.Operation, op.Parameters, op.StartedAt, op.Status).Scan(&op.ID)
	if err != nil {
		return nil, s.fail("creating operation", err)
	}
	return op, nil
}

func (s *store) FinishOperation(id int64, status string, finishedAt time.Time) error {
	_, err := s.db.Exec(s.q(`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`), status, finishedAt.UTC(), id)
	if err != nil {
		return s.fail("finishing operation", err)
	}
	return nil
}

func (s *store) ListOperations(limit int) ([]*sft.Operation, error) {
	query, args := s.paginate(`SELECT id, operation, parameters, started_at, finished_at, status FROM operations ORDER BY id DESC`, nil, limit, 0)
	rows, err := s.db.Query(s.q(query), args...)
	if err != nil {
		return nil, s.fail("listing operations", err)
	}
	defer rows.Close()

	result := []*sft.Operation{}
	for rows.Next() {
		var op sft.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, s.fail("listing operations", err)
		}
		op.StartedAt = op.StartedAt.UTC()
		if finished.Valid {
			t := finished.Time.UTC()
			op.FinishedAt = &t
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("listing operations", err)
	}
	return result, nil
}

func (s *store) MaxOperationID() (int64, error) {
	var id int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id); err != nil {
		return 0, s.fail("reading max operation id", err)
	}
	return id, nil
}
