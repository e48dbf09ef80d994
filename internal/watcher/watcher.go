// Package watcher drives the ingest pipeline from filesystem events on the
// ingest and update directories.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	sftfs "github.com/ProjectPAIE/sovereign-file-tracker/internal/fs"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// Pipeline is the part of the service the watcher drives.
type Pipeline interface {
	IngestNew(path string) (*sft.Revision, error)
	IngestUpdate(path string) (*sft.Revision, error)
}

type kind int

const (
	kindIngest kind = iota
	kindUpdate
)

func (k kind) String() string {
	if k == kindUpdate {
		return "update"
	}
	return "ingest"
}

// Watcher runs one pipeline per created file. Different paths proceed in
// parallel up to MaxConcurrent; events for the same path are serialized.
type Watcher struct {
	pipeline  Pipeline
	logger    sft.Logger
	ingestDir string
	updateDir string
	settle    time.Duration

	ingestIgnore *sftfs.IgnoreMatcher
	updateIgnore *sftfs.IgnoreMatcher

	gate  Gate
	locks *sftfs.PathLocker
	wg    sync.WaitGroup
}

// New creates a Watcher for the ingest and update directories in layout.
func New(pipeline Pipeline, layout config.LayoutConfig, cfg config.WatcherConfig, logger sft.Logger) (*Watcher, error) {
	if logger == nil {
		logger = sft.DiscardLogger()
	}
	ingestIgnore, err := sftfs.LoadIgnoreMatcher(layout.IngestDir, cfg.Ignore)
	if err != nil {
		return nil, fmt.Errorf("loading ingest ignore patterns: %w", err)
	}
	updateIgnore, err := sftfs.LoadIgnoreMatcher(layout.UpdateDir, cfg.Ignore)
	if err != nil {
		return nil, fmt.Errorf("loading update ignore patterns: %w", err)
	}

	return &Watcher{
		pipeline:     pipeline,
		logger:       logger,
		ingestDir:    filepath.Clean(layout.IngestDir),
		updateDir:    filepath.Clean(layout.UpdateDir),
		settle:       cfg.SettleDelay.Duration,
		ingestIgnore: ingestIgnore,
		updateIgnore: updateIgnore,
		gate:         NewGate(cfg.MaxConcurrent),
		locks:        sftfs.NewPathLocker(),
	}, nil
}

// Run watches until ctx is cancelled, then waits for in-flight pipelines
// and returns nil. It returns an error only if the watch cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.ingestDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.ingestDir, err)
	}
	if err := fsw.Add(w.updateDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.updateDir, err)
	}
	w.logger.Info("watcher started", "ingest", w.ingestDir, "update", w.updateDir, "settle_delay", w.settle.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping, waiting for in-flight files")
			w.wg.Wait()
			w.logger.Info("watcher stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			if ev.Has(fsnotify.Create) {
				w.handleCreate(ctx, fsw, ev.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

// Wait blocks until every dispatched pipeline has finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) handleCreate(ctx context.Context, fsw *fsnotify.Watcher, path string) {
	info, err := os.Lstat(path)
	if err != nil {
		// Already moved away, usually by an earlier event for the same file.
		w.logger.Debug("created path vanished", "path", path)
		return
	}

	if info.IsDir() {
		if !w.underIngest(path) {
			return
		}
		if err := w.addTree(fsw, path); err != nil {
			w.logger.Error("watching new directory", "path", path, "error", err)
			return
		}
		// Files may have landed before the watch was in place.
		w.sweep(ctx, path)
		return
	}

	w.dispatch(ctx, path)
}

// dispatch routes path to its pipeline unless it is ignored or outside the
// watched directories.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	var (
		k   kind
		rel string
	)
	switch {
	case filepath.Dir(path) == w.updateDir:
		k, rel = kindUpdate, filepath.Base(path)
		if w.updateIgnore.Match(rel) {
			w.logger.Debug("ignored", "path", path)
			return
		}
	case w.underIngest(path):
		k = kindIngest
		rel, _ = filepath.Rel(w.ingestDir, path)
		if w.ingestIgnore.Match(rel) {
			w.logger.Debug("ignored", "path", path)
			return
		}
	default:
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.gate.Enter()
		defer w.gate.Leave()

		unlock := w.locks.Lock(path)
		defer unlock()

		w.process(ctx, path, k)
	}()
}

func (w *Watcher) process(ctx context.Context, path string, k kind) {
	if w.settle > 0 {
		if err := waitSettled(ctx, path, w.settle); err != nil {
			w.logger.Debug("not processing unsettled file", "path", path, "error", err)
			return
		}
	}

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		w.logger.Debug("skipping", "path", path, "kind", k.String())
		return
	}

	w.logger.Info("processing", "path", path, "kind", k.String())
	var rev *sft.Revision
	if k == kindUpdate {
		rev, err = w.pipeline.IngestUpdate(path)
	} else {
		rev, err = w.pipeline.IngestNew(path)
	}
	if err != nil {
		if errors.Is(err, sft.ErrNotFound) && k == kindUpdate {
			w.logger.Warn("update for untracked file left in place", "path", path)
			return
		}
		w.logger.Error("processing failed", "path", path, "kind", k.String(), "error", err)
		return
	}
	w.logger.Info("processed", "path", path, "id", rev.ID, "revision", rev.Revision)
}

// addTree watches root and every directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
}

// sweep dispatches the regular files already inside dir.
func (w *Watcher) sweep(ctx context.Context, dir string) {
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			w.dispatch(ctx, p)
		}
		return nil
	})
}

func (w *Watcher) underIngest(path string) bool {
	rel, err := filepath.Rel(w.ingestDir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// waitSettled polls path every interval until two consecutive looks agree
// on size and modification time.
func waitSettled(ctx context.Context, path string, interval time.Duration) error {
	prev, err := os.Stat(path)
	if err != nil {
		return err
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		cur, err := os.Stat(path)
		if err != nil {
			return err
		}
		if cur.Size() == prev.Size() && cur.ModTime().Equal(prev.ModTime()) {
			return nil
		}
		prev = cur
	}
}
