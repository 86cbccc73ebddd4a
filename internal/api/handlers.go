package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Kingsman007137/Bowen/internal/apperr"
	"github.com/Kingsman007137/Bowen/internal/canvas"
	"github.com/Kingsman007137/Bowen/internal/index"
	"github.com/Kingsman007137/Bowen/internal/registry"
	"github.com/Kingsman007137/Bowen/internal/viewport"
)

// Handler holds API route handlers.
type Handler struct {
	engine  *canvas.Engine
	reg     *registry.Registry
	db      *index.DB
	adapter *viewport.Adapter
	notify  canvas.EventFunc
}

// NewHandler creates a new Handler. notify (may be nil) receives registry
// events: notebook.created/deleted, folder.created/deleted.
func NewHandler(engine *canvas.Engine, reg *registry.Registry, db *index.DB, adapter *viewport.Adapter, notify canvas.EventFunc) *Handler {
	return &Handler{engine: engine, reg: reg, db: db, adapter: adapter, notify: notify}
}

func (h *Handler) emit(kind string, data map[string]string) {
	if h.notify != nil {
		h.notify(kind, data)
	}
}

type validator interface {
	Validate() error
}

// decode reads a JSON body into v and runs its validation, writing the error
// response itself when either step fails.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if val, ok := v.(validator); ok {
		if err := val.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return false
		}
	}
	return true
}

// --- Notebooks ---

// ListNotebooks handles GET /notebooks.
func (h *Handler) ListNotebooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notebooks": h.reg.Notebooks(),
	})
}

// CreateNotebook handles POST /notebooks.
func (h *Handler) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	var req CreateNotebookRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FolderID != "" {
		if _, err := h.reg.GetFolder(req.FolderID); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("folder not found"))
			return
		}
	}
	nb := h.reg.AddNotebook(req.Name, req.FolderID, req.Gradient)
	h.emit("notebook.created", map[string]string{"id": nb.ID})
	writeJSON(w, http.StatusCreated, nb)
}

// GetNotebook handles GET /notebooks/{id}.
func (h *Handler) GetNotebook(w http.ResponseWriter, r *http.Request) {
	nb, err := h.reg.GetNotebook(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// UpdateNotebook handles PATCH /notebooks/{id}. A missing id is a silent
// no-op per the engine's stale-reference policy.
func (h *Handler) UpdateNotebook(w http.ResponseWriter, r *http.Request) {
	var req UpdateNotebookRequest
	if !decode(w, r, &req) {
		return
	}
	h.reg.UpdateNotebook(chi.URLParam(r, "id"), registry.NotebookPatch{
		Name:     req.Name,
		FolderID: req.FolderID,
		Gradient: req.Gradient,
	})
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNotebook handles DELETE /notebooks/{id}.
func (h *Handler) DeleteNotebook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.reg.DeleteNotebook(id)
	h.emit("notebook.deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- Folders ---

// ListFolders handles GET /folders.
func (h *Handler) ListFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"folders": h.reg.Folders(),
	})
}

// CreateFolder handles POST /folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decode(w, r, &req) {
		return
	}
	folder := h.reg.AddFolder(req.Name)
	h.emit("folder.created", map[string]string{"id": folder.ID})
	writeJSON(w, http.StatusCreated, folder)
}

// RenameFolder handles PATCH /folders/{id}.
func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req RenameFolderRequest
	if !decode(w, r, &req) {
		return
	}
	h.reg.RenameFolder(chi.URLParam(r, "id"), req.Name)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFolder handles DELETE /folders/{id}. Child notebooks are reassigned
// to "no folder", never deleted.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.reg.DeleteFolder(id)
	h.emit("folder.deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- Canvas session ---

// OpenCanvas handles POST /canvas/{notebookID}/open: hydrates the engine
// from the persisted snapshot (or an empty canvas) and resets the camera.
func (h *Handler) OpenCanvas(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	if _, err := h.reg.GetNotebook(notebookID); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("notebook not found"))
		return
	}
	if err := h.engine.LoadNotebookData(r.Context(), notebookID); err != nil {
		slog.Error("open canvas failed", slog.String("notebook_id", notebookID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.adapter.ResetView()
	writeJSON(w, http.StatusOK, h.engine.State())
}

// GetCanvas handles GET /canvas: the open notebook's full state.
func (h *Handler) GetCanvas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.State())
}

// SaveCanvas handles POST /canvas/save: an explicit save ahead of the
// debounce timer (e.g. before navigating away).
func (h *Handler) SaveCanvas(w http.ResponseWriter, r *http.Request) {
	if h.engine.CurrentNotebookID() == "" {
		writeJSON(w, http.StatusConflict, errorBody(apperr.ErrNoNotebook.Error()))
		return
	}
	if err := h.engine.SaveNotebookData(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("save failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetMode handles POST /canvas/mode.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if !decode(w, r, &req) {
		return
	}
	h.engine.SetMode(req.Mode)
	w.WriteHeader(http.StatusNoContent)
}

// GetGraph handles GET /canvas/graph: the viewport projection of the current
// state. With fit=1 and viewport dimensions (w, h) the camera is fitted to
// the bounding box of all cards; otherwise the session camera is returned.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	camera := h.adapter.Camera()
	if q.Get("fit") == "1" {
		vw, _ := strconv.ParseFloat(q.Get("w"), 64)
		vh, _ := strconv.ParseFloat(q.Get("h"), 64)
		camera = h.adapter.Fit(vw, vh)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"graph":  h.adapter.Graph(),
		"camera": camera,
	})
}

// --- Cards ---

// CreateCard handles POST /canvas/cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	if h.engine.CurrentNotebookID() == "" {
		writeJSON(w, http.StatusConflict, errorBody(apperr.ErrNoNotebook.Error()))
		return
	}
	var req CreateCardRequest
	if !decode(w, r, &req) {
		return
	}
	card := h.engine.AddCard(canvas.CreateCardInput{
		Position: req.Position,
		Size:     req.Size,
		Title:    req.Title,
		Content:  req.Content,
		Color:    req.Color,
	})
	writeJSON(w, http.StatusCreated, card)
}

// UpdateCard handles PATCH /canvas/cards/{id}. A missing id no-ops so a
// stale client reference (e.g. an edit racing a delete) stays harmless.
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var req UpdateCardRequest
	if !decode(w, r, &req) {
		return
	}
	h.engine.UpdateCard(chi.URLParam(r, "id"), canvas.CardPatch{
		Position: req.Position,
		Size:     req.Size,
		Title:    req.Title,
		Content:  req.Content,
		Color:    req.Color,
	})
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCard handles DELETE /canvas/cards/{id}, cascading connection
// removal inside the engine.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	h.engine.DeleteCard(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// DragEnd handles POST /canvas/cards/{id}/drag-end: the position commit on
// drag release.
func (h *Handler) DragEnd(w http.ResponseWriter, r *http.Request) {
	var req DragEndRequest
	if !decode(w, r, &req) {
		return
	}
	h.adapter.DragEnd(chi.URLParam(r, "id"), req.Position)
	w.WriteHeader(http.StatusNoContent)
}

// --- Connections ---

// CreateConnection handles POST /canvas/connections.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	if h.engine.CurrentNotebookID() == "" {
		writeJSON(w, http.StatusConflict, errorBody(apperr.ErrNoNotebook.Error()))
		return
	}
	var req CreateConnectionRequest
	if !decode(w, r, &req) {
		return
	}
	conn, err := h.engine.AddConnection(canvas.CreateConnectionInput{
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
		Type:         req.Type,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrSelfConnection) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("source and target must differ"))
			return
		}
		slog.Error("create connection failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// DeleteConnection handles DELETE /canvas/connections/{id}.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	h.adapter.RemoveEdge(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// --- Connect mode ---

// StartConnecting handles POST /canvas/connect/start.
func (h *Handler) StartConnecting(w http.ResponseWriter, r *http.Request) {
	var req ConnectGestureRequest
	if !decode(w, r, &req) {
		return
	}
	h.engine.StartConnecting(req.CardID)
	w.WriteHeader(http.StatusNoContent)
}

// FinishConnecting handles POST /canvas/connect/finish. Responds with the
// created connection, or 204 when the gesture completed without creating one
// (no pending source, or target equals source).
func (h *Handler) FinishConnecting(w http.ResponseWriter, r *http.Request) {
	var req ConnectGestureRequest
	if !decode(w, r, &req) {
		return
	}
	conn, created := h.engine.FinishConnecting(req.CardID)
	if !created {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// CancelConnecting handles POST /canvas/connect/cancel.
func (h *Handler) CancelConnecting(w http.ResponseWriter, _ *http.Request) {
	h.engine.CancelConnecting()
	w.WriteHeader(http.StatusNoContent)
}

// --- Search ---

// Search handles GET /search: full-text search across every card in every
// notebook.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.db.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			CardID:     hit.CardID,
			NotebookID: hit.NotebookID,
			Title:      hit.Title,
			Snippet:    hit.Snippet,
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
