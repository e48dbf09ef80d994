package sft

import "time"

// Database provides the persistent store for revisions, links and the
// operation log. Every mutating method runs as a single transaction.
//
// Lookups that find nothing return (nil, nil). Uniqueness violations are
// reported as ErrConflict (revisions) or ErrDuplicateEdge (links); other
// driver failures wrap ErrPersistence.
type Database interface {
	// Revision operations

	// InsertRevision writes a new revision row.
	InsertRevision(rev *Revision) error

	// FindRevision returns one (id, revision) row.
	FindRevision(id string, revision int) (*Revision, error)

	// LatestRevision returns the highest-numbered revision of an identity.
	LatestRevision(id string) (*Revision, error)

	// LatestRevisionByFilename returns the newest revision whose original
	// filename matches exactly.
	LatestRevisionByFilename(filename string) (*Revision, error)

	// RevisionsByID returns the revisions of an identity, newest first.
	// A limit <= 0 returns every row.
	RevisionsByID(id string, limit, offset int) ([]*Revision, error)

	// SearchRevisions returns revisions whose original filename contains
	// substr, compared case-insensitively, ordered by revision descending.
	SearchRevisions(substr string, limit, offset int) ([]*Revision, error)

	// LatestRevisions returns the latest revision of every identity, most
	// recent timestamp first. A limit <= 0 returns every identity.
	LatestRevisions(limit, offset int) ([]*Revision, error)

	// MutateRevisionTags applies op to the tag set of one row and returns the
	// updated row. Returns ErrNotFound if the row does not exist.
	MutateRevisionTags(id string, revision int, op TagOp, tags []string) (*Revision, error)

	// UpdateRevisionNotes replaces the notes of one row and returns the
	// updated row. Returns ErrNotFound if the row does not exist.
	UpdateRevisionNotes(id string, revision int, notes string) (*Revision, error)

	// CountRevisions returns the total number of revision rows.
	CountRevisions() (int, error)

	// Link operations

	// InsertEdge writes a new edge.
	InsertEdge(edge *Edge) error

	// FindEdge returns the edge between source and target.
	FindEdge(sourceID, targetID string) (*Edge, error)

	// DeleteEdge removes an edge and reports whether one existed.
	DeleteEdge(sourceID, targetID string) (bool, error)

	// MutateEdgeTags applies op to the tag set of an edge and returns it.
	// Returns ErrNotFound if the edge does not exist.
	MutateEdgeTags(sourceID, targetID string, op TagOp, tags []string) (*Edge, error)

	// OutgoingEdges returns edges leaving sourceID joined to each target's
	// latest revision, ordered by target filename then revision descending.
	OutgoingEdges(sourceID string) ([]*LinkedRevision, error)

	// IncomingEdges returns edges arriving at targetID joined to each
	// source's latest revision, newest source timestamp first.
	IncomingEdges(targetID string) ([]*LinkedRevision, error)

	// AllEdges returns every edge with both endpoints' latest revisions.
	AllEdges() ([]*LinkPair, error)

	// Operation log

	CreateOperation(operation, parameters string, startedAt time.Time) (*Operation, error)
	FinishOperation(id int64, status string, finishedAt time.Time) error
	ListOperations(limit int) ([]*Operation, error)
	MaxOperationID() (int64, error)

	// Lifecycle

	// CheckMigrations verifies that the schema is current.
	CheckMigrations() error

	// Migrate applies pending schema migrations.
	Migrate() error

	// BackupTo writes a consistent copy of the store to path.
	BackupTo(path string) error

	Close() error
}
