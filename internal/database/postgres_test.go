package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

func newPostgresWithMock(t *testing.T) (*PostgresDatabase, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresDatabaseFromDB(db), mock
}

var revisionCols = []string{"id", "revision", "original_filename", "archive_path", "tags", "notes", "created_at"}

func TestPostgres_InsertRevision_NumberedPlaceholders(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	q := `(?s)^INSERT INTO file_lineage \(id, revision, original_filename, archive_path, tags, notes, created_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)$`
	mock.ExpectExec(q).
		WithArgs("id-a", 1, "a.txt", "/archive/a.txt", `["x"]`, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.InsertRevision(&sft.Revision{ID: "id-a", Revision: 1, OriginalFilename: "a.txt", ArchivePath: "/archive/a.txt", Tags: []string{"x", "x"}, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("InsertRevision error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_InsertRevision_UniqueViolation(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`^INSERT INTO file_lineage`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := p.InsertRevision(&sft.Revision{ID: "id-a", Revision: 1, Timestamp: time.Now()})
	if !errors.Is(err, sft.ErrConflict) {
		t.Fatalf("InsertRevision error = %v, want ErrConflict", err)
	}
}

func TestPostgres_InsertRevision_OtherError(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`^INSERT INTO file_lineage`).WillReturnError(errors.New("db down"))

	err := p.InsertRevision(&sft.Revision{ID: "id-a", Revision: 1, Timestamp: time.Now()})
	if !errors.Is(err, sft.ErrPersistence) {
		t.Fatalf("InsertRevision error = %v, want ErrPersistence", err)
	}
	if errors.Is(err, sft.ErrConflict) {
		t.Fatalf("InsertRevision error = %v, should not be a conflict", err)
	}
}

func TestPostgres_InsertEdge_Violations(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"duplicate", "23505", sft.ErrDuplicateEdge},
		{"self link", "23514", sft.ErrSelfLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newPostgresWithMock(t)
			mock.ExpectExec(`^INSERT INTO links`).WillReturnError(&pgconn.PgError{Code: tt.code})

			err := p.InsertEdge(&sft.Edge{SourceID: "a", TargetID: "b", CreatedAt: time.Now()})
			if !errors.Is(err, tt.want) {
				t.Errorf("InsertEdge error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPostgres_FindRevision_NotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`^SELECT .* FROM file_lineage WHERE id = \$1 AND revision = \$2$`).
		WithArgs("ghost", 1).
		WillReturnError(sql.ErrNoRows)

	rev, err := p.FindRevision("ghost", 1)
	if err != nil {
		t.Fatalf("FindRevision error: %v", err)
	}
	if rev != nil {
		t.Fatalf("FindRevision = %+v, want nil", rev)
	}
}

func TestPostgres_SearchRevisions_EscapesPattern(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(revisionCols).
		AddRow("id-a", 2, "50%_Off.txt", "/archive/a", `["promo"]`, "", now)
	mock.ExpectQuery(`LOWER\(original_filename\) LIKE \$1 ESCAPE '\\' ORDER BY revision DESC, created_at DESC, id LIMIT \$2 OFFSET \$3$`).
		WithArgs(`%50\%\_off%`, 10, 5).
		WillReturnRows(rows)

	got, err := p.SearchRevisions("50%_OFF", 10, 5)
	if err != nil {
		t.Fatalf("SearchRevisions error: %v", err)
	}
	if len(got) != 1 || got[0].Revision != 2 || got[0].Tags[0] != "promo" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestPostgres_LatestRevisions_OffsetWithoutLimit(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`LIMIT ALL OFFSET \$1$`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(revisionCols))

	got, err := p.LatestRevisions(0, 3)
	if err != nil {
		t.Fatalf("LatestRevisions error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("LatestRevisions = %v, want empty", got)
	}
}

func TestPostgres_MutateRevisionTags_LocksRow(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT tags FROM file_lineage WHERE id = \$1 AND revision = \$2 FOR UPDATE$`).
		WithArgs("id-a", 1).
		WillReturnRows(sqlmock.NewRows([]string{"tags"}).AddRow(`["a"]`))
	mock.ExpectExec(`^UPDATE file_lineage SET tags = \$1 WHERE id = \$2 AND revision = \$3$`).
		WithArgs(`["a","b"]`, "id-a", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`^SELECT .* FROM file_lineage WHERE id = \$1 AND revision = \$2$`).
		WithArgs("id-a", 1).
		WillReturnRows(sqlmock.NewRows(revisionCols).AddRow("id-a", 1, "a.txt", "/archive/a", `["a","b"]`, "", now))
	mock.ExpectCommit()

	rev, err := p.MutateRevisionTags("id-a", 1, sft.TagAdd, []string{"b"})
	if err != nil {
		t.Fatalf("MutateRevisionTags error: %v", err)
	}
	if len(rev.Tags) != 2 {
		t.Errorf("Tags = %v, want [a b]", rev.Tags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_MutateRevisionTags_MissingRowRollsBack(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT tags FROM file_lineage`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := p.MutateRevisionTags("id-a", 7, sft.TagAdd, []string{"b"})
	if !errors.Is(err, sft.ErrNotFound) {
		t.Fatalf("MutateRevisionTags error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_CreateOperation_Returning(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`^INSERT INTO operations \(operation, parameters, started_at, status\) VALUES \(\$1, \$2, \$3, \$4\) RETURNING id$`).
		WithArgs("ingest", "a.txt", sqlmock.AnyArg(), "started").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	op, err := p.CreateOperation("ingest", "a.txt", time.Now())
	if err != nil {
		t.Fatalf("CreateOperation error: %v", err)
	}
	if op.ID != 42 || op.Status != "started" {
		t.Fatalf("unexpected operation: %+v", op)
	}
}

func TestPostgres_BackupTo_Unsupported(t *testing.T) {
	p, _ := newPostgresWithMock(t)

	if err := p.BackupTo("/tmp/x.db"); !errors.Is(err, ErrBackupUnsupported) {
		t.Fatalf("BackupTo error = %v, want ErrBackupUnsupported", err)
	}
}
