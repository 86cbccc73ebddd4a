// Package registry is the in-memory catalog of notebooks and folders,
// independent of canvas contents. Every mutation is persisted write-through
// as two whole-collection entries, in contrast with the canvas data's
// debounced per-notebook persistence.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/Kingsman007137/Bowen/internal/apperr"
	"github.com/Kingsman007137/Bowen/internal/ident"
	"github.com/Kingsman007137/Bowen/internal/models"
	"github.com/Kingsman007137/Bowen/internal/storage"
)

// Storage keys for the whole-collection snapshots.
const (
	notebooksKey = "notebooks"
	foldersKey   = "folders"
)

// CanvasDeleter removes a notebook's persisted canvas snapshot. Satisfied by
// *snapshot.Store; narrowed to an interface so tests can observe the call.
type CanvasDeleter interface {
	Delete(notebookID string) error
}

// NotebookPatch holds optional field updates for UpdateNotebook.
// Nil fields are left untouched.
type NotebookPatch struct {
	Name     *string
	FolderID *string
	Gradient *string
}

// Registry holds the notebook/folder catalog.
type Registry struct {
	mu        sync.Mutex
	notebooks []models.Notebook
	folders   []models.Folder

	kv     storage.Provider
	canvas CanvasDeleter
	logger *slog.Logger
}

// New creates an empty registry persisting through kv. canvas may be nil when
// no snapshot cleanup is wanted (tests).
func New(kv storage.Provider, canvas CanvasDeleter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{kv: kv, canvas: canvas, logger: logger}
}

// Load hydrates both collections from the store. A missing or unreadable
// entry yields an empty collection rather than an error.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notebooks = loadCollection[models.Notebook](r.kv, notebooksKey, r.logger)
	r.folders = loadCollection[models.Folder](r.kv, foldersKey, r.logger)
	return nil
}

func loadCollection[T any](kv storage.Provider, key string, logger *slog.Logger) []T {
	data, err := kv.Get(key)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("registry: load failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Warn("registry: decode failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	return out
}

// persist writes one collection snapshot. Failures are logged and swallowed;
// the in-memory catalog stays authoritative.
func (r *Registry) persist(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("registry: marshal failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := r.kv.Set(key, data); err != nil {
		r.logger.Error("registry: persist failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (r *Registry) persistNotebooks() { r.persist(notebooksKey, r.notebooks) }
func (r *Registry) persistFolders()   { r.persist(foldersKey, r.folders) }

// AddNotebook creates a notebook. An empty gradient picks uniformly from the
// fixed palette; a non-empty folderID increments that folder's count.
func (r *Registry) AddNotebook(name, folderID, gradient string) models.Notebook {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gradient == "" {
		gradient = models.GradientKeys[rand.Intn(len(models.GradientKeys))]
	}
	now := time.Now().UnixMilli()
	nb := models.Notebook{
		ID:        ident.New(),
		Name:      name,
		FolderID:  folderID,
		CardCount: 0,
		Gradient:  gradient,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.notebooks = append(r.notebooks, nb)
	if folderID != "" {
		r.adjustFolderCount(folderID, 1)
		r.persistFolders()
	}
	r.persistNotebooks()
	return nb
}

// UpdateNotebook merges patch fields and refreshes UpdatedAt. A FolderID
// change moves the notebook count from the old folder to the new one.
// Silent no-op when the id is not found.
func (r *Registry) UpdateNotebook(id string, patch NotebookPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.notebooks {
		if r.notebooks[i].ID != id {
			continue
		}
		if patch.Name != nil {
			r.notebooks[i].Name = *patch.Name
		}
		if patch.FolderID != nil && *patch.FolderID != r.notebooks[i].FolderID {
			if prev := r.notebooks[i].FolderID; prev != "" {
				r.adjustFolderCount(prev, -1)
			}
			if *patch.FolderID != "" {
				r.adjustFolderCount(*patch.FolderID, 1)
			}
			r.notebooks[i].FolderID = *patch.FolderID
			r.persistFolders()
		}
		if patch.Gradient != nil {
			r.notebooks[i].Gradient = *patch.Gradient
		}
		r.notebooks[i].UpdatedAt = time.Now().UnixMilli()
		r.persistNotebooks()
		return
	}
}

// SetCardCount reconciles the denormalized card counter after a canvas save.
func (r *Registry) SetCardCount(id string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.notebooks {
		if r.notebooks[i].ID != id {
			continue
		}
		if r.notebooks[i].CardCount == n {
			return
		}
		r.notebooks[i].CardCount = n
		r.notebooks[i].UpdatedAt = time.Now().UnixMilli()
		r.persistNotebooks()
		return
	}
}

// DeleteNotebook removes a notebook, decrements its folder's count (floor 0),
// and fires off deletion of the persisted canvas snapshot. Snapshot deletion
// failure is logged, never surfaced.
func (r *Registry) DeleteNotebook(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.notebooks {
		if r.notebooks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	folderID := r.notebooks[idx].FolderID
	r.notebooks = append(r.notebooks[:idx], r.notebooks[idx+1:]...)
	if folderID != "" {
		r.adjustFolderCount(folderID, -1)
		r.persistFolders()
	}
	r.persistNotebooks()

	if r.canvas != nil {
		go func() {
			if err := r.canvas.Delete(id); err != nil {
				r.logger.Warn("registry: delete canvas snapshot failed",
					slog.String("notebook_id", id), slog.String("error", err.Error()))
			}
		}()
	}
}

// GetNotebook returns a copy of the notebook with the given id.
func (r *Registry) GetNotebook(id string) (models.Notebook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, nb := range r.notebooks {
		if nb.ID == id {
			return nb, nil
		}
	}
	return models.Notebook{}, fmt.Errorf("registry: notebook %s: %w", id, apperr.ErrNotFound)
}

// Notebooks returns a copy of the notebook collection.
func (r *Registry) Notebooks() []models.Notebook {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notebook, len(r.notebooks))
	copy(out, r.notebooks)
	return out
}

// AddFolder creates a folder.
func (r *Registry) AddFolder(name string) models.Folder {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := models.Folder{
		ID:        ident.New(),
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}
	r.folders = append(r.folders, f)
	r.persistFolders()
	return f
}

// RenameFolder sets a folder's name. Silent no-op when the id is not found.
func (r *Registry) RenameFolder(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.folders {
		if r.folders[i].ID == id {
			r.folders[i].Name = name
			r.persistFolders()
			return
		}
	}
}

// DeleteFolder removes a folder, first reassigning its notebooks to "no
// folder" (the folder reference is weak; child notebooks survive).
func (r *Registry) DeleteFolder(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.folders {
		if r.folders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	reassigned := false
	for i := range r.notebooks {
		if r.notebooks[i].FolderID == id {
			r.notebooks[i].FolderID = ""
			reassigned = true
		}
	}
	r.folders = append(r.folders[:idx], r.folders[idx+1:]...)
	r.persistFolders()
	if reassigned {
		r.persistNotebooks()
	}
}

// GetFolder returns a copy of the folder with the given id.
func (r *Registry) GetFolder(id string) (models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.folders {
		if f.ID == id {
			return f, nil
		}
	}
	return models.Folder{}, fmt.Errorf("registry: folder %s: %w", id, apperr.ErrNotFound)
}

// Folders returns a copy of the folder collection.
func (r *Registry) Folders() []models.Folder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Folder, len(r.folders))
	copy(out, r.folders)
	return out
}

// adjustFolderCount shifts a folder's notebook count, never below zero.
// Caller holds the lock.
func (r *Registry) adjustFolderCount(id string, delta int) {
	for i := range r.folders {
		if r.folders[i].ID != id {
			continue
		}
		n := r.folders[i].NotebookCount + delta
		if n < 0 {
			n = 0
		}
		r.folders[i].NotebookCount = n
		return
	}
}
