package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, ah *AttachmentHandler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notebook/folder registry.
	r.Get("/notebooks", h.ListNotebooks)
	r.Post("/notebooks", h.CreateNotebook)
	r.Get("/notebooks/{id}", h.GetNotebook)
	r.Patch("/notebooks/{id}", h.UpdateNotebook)
	r.Delete("/notebooks/{id}", h.DeleteNotebook)

	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Patch("/folders/{id}", h.RenameFolder)
	r.Delete("/folders/{id}", h.DeleteFolder)

	// Canvas session.
	r.Post("/canvas/{notebookID}/open", h.OpenCanvas)
	r.Get("/canvas", h.GetCanvas)
	r.Post("/canvas/save", h.SaveCanvas)
	r.Post("/canvas/mode", h.SetMode)
	r.Get("/canvas/graph", h.GetGraph)

	// Cards.
	r.Post("/canvas/cards", h.CreateCard)
	r.Patch("/canvas/cards/{id}", h.UpdateCard)
	r.Delete("/canvas/cards/{id}", h.DeleteCard)
	r.Post("/canvas/cards/{id}/drag-end", h.DragEnd)

	// Connections.
	r.Post("/canvas/connections", h.CreateConnection)
	r.Delete("/canvas/connections/{id}", h.DeleteConnection)

	// Connect-mode gestures.
	r.Post("/canvas/connect/start", h.StartConnecting)
	r.Post("/canvas/connect/finish", h.FinishConnecting)
	r.Post("/canvas/connect/cancel", h.CancelConnecting)

	// Search.
	r.Get("/search", h.Search)

	// Attachments upload (auth-protected).
	if ah != nil {
		r.Post("/attachments", ah.Upload)
	}

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
