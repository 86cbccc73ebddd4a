package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Kingsman007137/Bowen/internal/snapshot"
	"github.com/Kingsman007137/Bowen/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is "updated" or "deleted".
type EventCallback func(kind string, notebookID string)

// Watch starts an fsnotify watcher on the data directory and keeps the index
// in sync with canvas snapshots written by other sessions or processes, until
// ctx is cancelled. It calls cb (if non-nil) after each index mutation.
//
// Atomic snapshot writes land as a rename onto the final name, which fsnotify
// reports as Create; rename/remove events for a snapshot file schedule a
// short debounced reconciliation pass that also catches anything missed
// during event bursts.
func Watch(ctx context.Context, db *DB, store storage.Provider, dataDir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dataDir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", dataDir))

	// reconcileTimer debounces full reconciliation after removes/renames.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Sync(db, store, logger); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			key, ok := storage.KeyFromFile(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			notebookID, ok := snapshot.NotebookID(key)
			if !ok {
				// Registry collections and other entries are not indexed.
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if idxErr := indexSnapshot(db, store, key, notebookID); idxErr != nil {
					logger.Warn("watcher: index failed",
						slog.String("key", key), slog.String("error", idxErr.Error()))
					continue
				}
				logger.Debug("watcher: indexed", slog.String("key", key))
				if cb != nil {
					cb("updated", notebookID)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteNotebook(notebookID, key); delErr != nil {
					logger.Warn("watcher: delete failed",
						slog.String("key", key), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("key", key))
				if cb != nil {
					cb("deleted", notebookID)
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; reconcile shortly.
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
