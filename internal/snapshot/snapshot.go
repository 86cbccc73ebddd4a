// Package snapshot persists per-notebook canvas state through the key-value
// store. Every save is a full-state replace; there are no partial or merge
// writes.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Kingsman007137/Bowen/internal/models"
	"github.com/Kingsman007137/Bowen/internal/storage"
)

// KeyPrefix is the namespace prefix for canvas snapshot entries.
const KeyPrefix = "canvas_"

// Key returns the storage key for a notebook's canvas snapshot.
func Key(notebookID string) string {
	return KeyPrefix + notebookID
}

// NotebookID extracts the notebook id from a snapshot storage key;
// ok is false for keys outside the canvas namespace.
func NotebookID(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, KeyPrefix), true
}

// Store reads and writes canvas snapshots.
type Store struct {
	kv storage.Provider
}

// NewStore creates a snapshot store over the given provider.
func NewStore(kv storage.Provider) *Store {
	return &Store{kv: kv}
}

// Save overwrites the snapshot for notebookID, stamping LastSaved with the
// current time in epoch milliseconds.
func (s *Store) Save(notebookID string, cards []models.Card, connections []models.Connection) error {
	if cards == nil {
		cards = []models.Card{}
	}
	if connections == nil {
		connections = []models.Connection{}
	}
	state := models.CanvasState{
		NotebookID:  notebookID,
		Cards:       cards,
		Connections: connections,
		LastSaved:   time.Now().UnixMilli(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("snapshot: marshal %s: %w", notebookID, err)
	}
	return s.kv.Set(Key(notebookID), data)
}

// Load returns the snapshot for notebookID, or nil when none has ever been
// saved. An empty notebook and a never-saved one are indistinguishable to
// callers that treat nil as empty state.
func (s *Store) Load(notebookID string) (*models.CanvasState, error) {
	data, err := s.kv.Get(Key(notebookID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return Decode(notebookID, data)
}

// Delete removes the snapshot for notebookID. Deleting a never-saved
// notebook is not an error.
func (s *Store) Delete(notebookID string) error {
	if err := s.kv.Delete(Key(notebookID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Decode parses raw snapshot bytes. Unknown fields (e.g. a viewport block
// written by earlier variants) are ignored, and nil slices are normalized so
// callers always see non-nil cards/connections.
func Decode(notebookID string, data []byte) (*models.CanvasState, error) {
	var state models.CanvasState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", notebookID, err)
	}
	if state.NotebookID == "" {
		state.NotebookID = notebookID
	}
	if state.Cards == nil {
		state.Cards = []models.Card{}
	}
	if state.Connections == nil {
		state.Connections = []models.Connection{}
	}
	return &state, nil
}
