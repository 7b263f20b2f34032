package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/henryperkins/mcprag/internal/errors"
)

// defaultDebounce coalesces bursts of file events (editor saves, git
// checkouts) into one incremental reindex.
const defaultDebounce = 2 * time.Second

// Watch reindexes changed files as they change on disk, until the context
// is cancelled. Events are debounced; each flush goes through
// IndexChangedFiles so deletions are handled too.
func (w *Worker) Watch(ctx context.Context, root, repository string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.KindInternal, "create file watcher", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch every directory except hidden ones and a fixed set of
	// dependency and build directories.
	if err := w.addWatchDirs(watcher, root); err != nil {
		return err
	}

	slog.Info("watching repository for changes",
		slog.String("root", root),
		slog.Duration("debounce", debounce))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		files := make([]string, 0, len(pending))
		for f := range pending {
			files = append(files, f)
		}
		pending = make(map[string]struct{})

		report, err := w.IndexChangedFiles(ctx, root, repository, files)
		if err != nil {
			slog.Warn("incremental reindex failed",
				slog.Int("files", len(files)),
				slog.String("error", err.Error()))
			return
		}
		slog.Info("incremental reindex complete",
			slog.Int("files", len(files)),
			slog.Int("uploaded", report.Uploaded))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil || !w.includeFile(rel) {
				// New directories need watches even when not indexable.
				if event.Op.Has(fsnotify.Create) {
					if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) ||
				event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				pending[filepath.ToSlash(rel)] = struct{}{}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			}

		case <-timerC:
			flush()
			timer = nil
			timerC = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// addWatchDirs registers watches on root and every directory below it,
// skipping hidden directories and a fixed set of dependency and build
// directories. .gitignore rules are not applied here.
func (w *Worker) addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	skip := map[string]bool{".git": true, "node_modules": true, "vendor": true, "dist": true, "build": true}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if skip[base] || strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
