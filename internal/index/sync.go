package index

import (
	"log/slog"

	"github.com/Kingsman007137/Bowen/internal/snapshot"
	"github.com/Kingsman007137/Bowen/internal/storage"
)

// Sync walks every canvas snapshot in the store and brings the index up to
// date: new or changed snapshots are re-indexed whole, and snapshots removed
// from disk are dropped from the index. Registry entries (notebooks/folders
// collections) are not canvas snapshots and are skipped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	entries, err := store.List()
	if err != nil {
		return err
	}

	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}

	onDisk := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		notebookID, ok := snapshot.NotebookID(entry.Key)
		if !ok {
			continue
		}
		onDisk[entry.Key] = struct{}{}

		if indexed[entry.Key] == entry.Checksum {
			continue
		}
		if err := indexSnapshot(db, store, entry.Key, notebookID); err != nil {
			logger.Warn("sync: index failed", slog.String("key", entry.Key), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("key", entry.Key))
		}
	}

	// Remove stale entries.
	for key := range indexed {
		if _, ok := onDisk[key]; ok {
			continue
		}
		notebookID, ok := snapshot.NotebookID(key)
		if !ok {
			continue
		}
		if err := db.DeleteNotebook(notebookID, key); err != nil {
			logger.Warn("sync: delete failed", slog.String("key", key), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("key", key))
		}
	}

	return nil
}

// indexSnapshot reads a snapshot from the store and replaces its notebook's
// cards in the index.
func indexSnapshot(db *DB, store storage.Provider, key, notebookID string) error {
	data, err := store.Get(key)
	if err != nil {
		return err
	}
	state, err := snapshot.Decode(notebookID, data)
	if err != nil {
		return err
	}

	rows := make([]CardRow, len(state.Cards))
	for i, c := range state.Cards {
		rows[i] = CardRow{
			ID:         c.ID,
			NotebookID: c.NotebookID,
			Title:      c.Title,
			Body:       Plaintext(c.Content),
			Color:      c.Color,
			UpdatedAt:  c.UpdatedAt,
		}
	}
	return db.ReplaceNotebook(notebookID, key, storage.Checksum(data), rows)
}
