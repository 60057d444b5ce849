package platform

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileImporter loads a rule file into the rule table.
type FileImporter interface {
	ImportFile(ctx context.Context, path string) (int, error)
}

// Invalidator drops a cached rule snapshot.
type Invalidator interface {
	Invalidate()
}

// FileWatcher re-imports an operator rule file whenever it changes and
// invalidates the registry so the next extraction sees the new rules.
type FileWatcher struct {
	path     string
	importer FileImporter
	registry Invalidator
	logger   *slog.Logger
	debounce time.Duration
}

// NewFileWatcher creates a watcher for the rule file at path.
func NewFileWatcher(path string, importer FileImporter, registry Invalidator, logger *slog.Logger) *FileWatcher {
	return &FileWatcher{
		path:     filepath.Clean(path),
		importer: importer,
		registry: registry,
		logger:   logger.With("component", "rule-file-watcher"),
		debounce: 500 * time.Millisecond,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (w *FileWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Sync imports the file once and invalidates the registry.
func (w *FileWatcher) Sync(ctx context.Context) error {
	n, err := w.importer.ImportFile(ctx, w.path)
	if err != nil {
		return err
	}
	w.registry.Invalidate()
	w.logger.Info("rule file imported", "path", w.path, "rules", n)
	return nil
}

// Run blocks until ctx is canceled. The parent directory is watched rather
// than the file itself so editors that replace the file by rename are seen.
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !timer.Stop() && pending {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "error", err)

		case <-timer.C:
			pending = false
			if err := w.Sync(ctx); err != nil {
				w.logger.Error("importing rule file failed", "path", w.path, "error", err)
			}
		}
	}
}
