package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/database/migrations"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/encryption"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/fs"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/vault"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/watcher"
)

// ErrStoreBehind is returned by NewSFTApp when a vault holds a snapshot
// taken after the newest local operation.
var ErrStoreBehind = errors.New("local store is behind vault")

// Options tune how NewSFTApp wires the application.
type Options struct {
	// Stderr receives log records at or above LogLevel. Defaults to os.Stderr.
	Stderr   io.Writer
	LogLevel slog.Level

	// Migrate applies pending migrations instead of refusing to start.
	Migrate bool

	// SkipVersionCheck starts even when a vault is ahead of the local store.
	SkipVersionCheck bool

	Clock sft.Clock
	IDs   sft.IDGenerator
}

// SFTApp is the application layer between the CLI and SFTService.
// It constructs all dependencies from config, records mutating commands in
// the operation log and pushes a metadata snapshot to every vault on Close.
type SFTApp struct {
	cfg       *config.Config
	db        sft.Database
	archive   *fs.OSArchive
	vaults    []sft.Vault
	encryptor sft.Encryptor
	service   *sft.SFTService
	logger    *slog.Logger
	clock     sft.Clock
	op        *Operation
	logFile   *os.File
}

// NewSFTApp creates a fully wired SFTApp from the given config.
// operation identifies the CLI command being run (e.g. "Tag", "Audit").
// The caller must call Close when done.
func NewSFTApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (a *SFTApp, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = sft.SystemClock()
	}
	if opts.IDs == nil {
		opts.IDs = sft.UUIDv7()
	}

	vaults, err := vault.NewVaultsFromConfig(ctx, cfg.Vaults)
	if err != nil {
		return nil, fmt.Errorf("creating vaults: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// An in-memory store starts empty on every run.
	if opts.Migrate || cfg.Database.Type == "memory" {
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	} else if err := db.CheckMigrations(); err != nil {
		if errors.Is(err, migrations.ErrAhead) {
			return nil, fmt.Errorf("database was migrated by a newer sft: %w", err)
		}
		return nil, fmt.Errorf("database schema out of date (run `sft init`): %w", err)
	}

	if !opts.SkipVersionCheck {
		if err := checkVaultVersions(db, vaults, cfg.HostID); err != nil {
			return nil, err
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, opts.Stderr, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	archive := fs.NewOSArchive(cfg.Layout)
	classifier := sft.NewClassifier(cfg.Categories)
	svc := sft.NewSFTService(db, archive, classifier, logger, opts.Clock, opts.IDs)

	return &SFTApp{
		cfg:       cfg,
		db:        db,
		archive:   archive,
		vaults:    vaults,
		encryptor: enc,
		service:   svc,
		logger:    logger,
		clock:     opts.Clock,
		op:        NewOperation(operation),
		logFile:   logFile,
	}, nil
}

// checkVaultVersions refuses to run against a store older than a snapshot
// some vault already holds; writing to it would fork the history.
func checkVaultVersions(db sft.Database, vaults []sft.Vault, hostID string) error {
	if len(vaults) == 0 {
		return nil
	}
	localMax, err := db.MaxOperationID()
	if err != nil {
		return fmt.Errorf("checking local metadata version: %w", err)
	}
	for _, v := range vaults {
		remote, err := v.SnapshotVersion(hostID)
		if err != nil {
			return fmt.Errorf("checking snapshot version in vault %s: %w", v.Name(), err)
		}
		if remote > localMax {
			return fmt.Errorf("%w %s (local=%d, remote=%d): restore with `sft snapshot restore` or re-initialize",
				ErrStoreBehind, v.Name(), localMax, remote)
		}
	}
	return nil
}

// Config returns the effective configuration.
func (a *SFTApp) Config() *config.Config {
	return a.cfg
}

// Operation returns the operation this app was created for.
func (a *SFTApp) Operation() *Operation {
	return a.op
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *SFTApp) persistOperation(params ...string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = strings.Join(params, " ")
	dbOp, err := a.db.CreateOperation(a.op.Name, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate persists the operation and runs fn, recording its outcome.
func mutate[T any](a *SFTApp, params []string, fn func() (T, error)) (T, error) {
	if err := a.persistOperation(params...); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn()
	return v, a.op.Record(err)
}

// Init creates the archive layout for every configured category.
func (a *SFTApp) Init() error {
	_, err := mutate(a, []string{a.cfg.BaseDir}, func() (struct{}, error) {
		return struct{}{}, a.service.Init()
	})
	return err
}

// Ingest runs the ingest pipeline on one file. With update set, the file
// becomes a new revision of the identity with the same original filename.
func (a *SFTApp) Ingest(rawPath string, update bool) (*sft.Revision, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return mutate(a, []string{p}, func() (*sft.Revision, error) {
		if update {
			return a.service.IngestUpdate(p)
		}
		return a.service.IngestNew(p)
	})
}

// Watch runs the directory watcher until ctx is cancelled.
func (a *SFTApp) Watch(ctx context.Context) error {
	_, err := mutate(a, []string{a.cfg.Layout.IngestDir, a.cfg.Layout.UpdateDir}, func() (struct{}, error) {
		w, err := watcher.New(a.service, a.cfg.Layout, a.cfg.Watcher, a.logger)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, w.Run(ctx)
	})
	return err
}

// Find resolves identifier to matching revisions.
func (a *SFTApp) Find(identifier string, limit, offset int) ([]*sft.Revision, error) {
	return a.service.Resolve(identifier, limit, offset)
}

// Recent returns the latest revision of the most recently touched identities.
func (a *SFTApp) Recent(limit int) ([]*sft.Revision, error) {
	return a.service.Recent(limit)
}

// History returns every revision of one identity, newest first.
func (a *SFTApp) History(identifier string) ([]*sft.Revision, error) {
	return a.service.History(identifier)
}

// Tag adds or removes tags on the latest revision of identifier.
func (a *SFTApp) Tag(identifier string, op sft.TagOp, tags []string) (*sft.Revision, error) {
	return mutate(a, append([]string{op.String(), identifier}, tags...), func() (*sft.Revision, error) {
		return a.service.TagLatest(identifier, op, tags)
	})
}

// Note replaces the notes of the latest revision of identifier.
func (a *SFTApp) Note(identifier, notes string) (*sft.Revision, error) {
	return mutate(a, []string{identifier}, func() (*sft.Revision, error) {
		return a.service.NoteLatest(identifier, notes)
	})
}

// Link creates a directed edge from source to target.
func (a *SFTApp) Link(source, target, notes string) (*sft.Edge, error) {
	return mutate(a, []string{source, target}, func() (*sft.Edge, error) {
		return a.service.CreateEdge(source, target, notes)
	})
}

// Unlink removes the edge from source to target and reports whether one existed.
func (a *SFTApp) Unlink(source, target string) (bool, error) {
	return mutate(a, []string{source, target}, func() (bool, error) {
		return a.service.RemoveEdge(source, target)
	})
}

// LinkTags adds or removes tags on the edge from source to target.
func (a *SFTApp) LinkTags(source, target string, op sft.TagOp, tags []string) (*sft.Edge, error) {
	return mutate(a, append([]string{op.String(), source, target}, tags...), func() (*sft.Edge, error) {
		return a.service.MutateEdgeTags(source, target, op, tags)
	})
}

func (a *SFTApp) Outgoing(identifier string) ([]*sft.LinkedRevision, error) {
	return a.service.Outgoing(identifier)
}

func (a *SFTApp) Incoming(identifier string) ([]*sft.LinkedRevision, error) {
	return a.service.Incoming(identifier)
}

func (a *SFTApp) AllLinks() ([]*sft.LinkPair, error) {
	return a.service.AllLinks()
}

// Trace finds the shortest directed path between two files.
func (a *SFTApp) Trace(start, end string) ([]*sft.PathStep, error) {
	return a.service.Trace(start, end)
}

// Audit checks the symlink projection. Only a fixing audit is recorded as
// an operation.
func (a *SFTApp) Audit(fix bool) (*sft.AuditReport, error) {
	if !fix {
		return a.service.Audit(false)
	}
	return mutate(a, []string{"--fix"}, func() (*sft.AuditReport, error) {
		return a.service.Audit(true)
	})
}

// Delete soft-deletes the identity identifier resolves to.
func (a *SFTApp) Delete(identifier string) (*sft.DeleteResult, error) {
	return mutate(a, []string{identifier}, func() (*sft.DeleteResult, error) {
		return a.service.SoftDelete(identifier)
	})
}

// Diff compares two revisions of one identity.
func (a *SFTApp) Diff(identifier string, from, to int) (*sft.DiffResult, error) {
	return a.service.Diff(identifier, from, to)
}

// Checkout copies the latest revision of identifier into destDir, or the
// configured checkout directory when destDir is empty.
func (a *SFTApp) Checkout(identifier, destDir string) (string, error) {
	if destDir == "" {
		destDir = a.cfg.Layout.CheckoutDir
	}
	dest, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return a.service.Checkout(identifier, dest)
}

// Stats summarizes the store.
func (a *SFTApp) Stats() (*sft.Stats, error) {
	return a.service.Stats()
}

// Operations returns the most recent entries of the operation log.
func (a *SFTApp) Operations(limit int) ([]*sft.Operation, error) {
	ops, err := a.db.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, then snapshots the
// store and pushes the snapshot to every vault.
// For non-persisted operations: just closes the database.
func (a *SFTApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
		if len(a.vaults) > 0 {
			if err := a.pushSnapshot(a.op.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}
