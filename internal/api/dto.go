package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Kingsman007137/Bowen/internal/models"
)

// gradientKeys and handleKeys adapt the fixed palettes to ozzo's In rule.
var (
	gradientKeys = func() []interface{} {
		out := make([]interface{}, len(models.GradientKeys))
		for i, k := range models.GradientKeys {
			out[i] = k
		}
		return out
	}()
	handleKeys = []interface{}{
		models.HandleTop, models.HandleRight, models.HandleBottom, models.HandleLeft,
	}
)

// CreateNotebookRequest is the request body for creating a notebook.
type CreateNotebookRequest struct {
	Name     string `json:"name"`
	FolderID string `json:"folderId,omitempty"`
	Gradient string `json:"gradient,omitempty"`
}

// Validate validates the request.
func (r CreateNotebookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Gradient, validation.In(gradientKeys...)),
	)
}

// UpdateNotebookRequest carries optional notebook field updates.
// Absent fields are left untouched.
type UpdateNotebookRequest struct {
	Name     *string `json:"name,omitempty"`
	FolderID *string `json:"folderId,omitempty"`
	Gradient *string `json:"gradient,omitempty"`
}

// Validate validates the request.
func (r UpdateNotebookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Gradient, validation.In(gradientKeys...)),
	)
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Name string `json:"name"`
}

// Validate validates the request.
func (r CreateFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// RenameFolderRequest is the request body for renaming a folder.
type RenameFolderRequest struct {
	Name string `json:"name"`
}

// Validate validates the request.
func (r RenameFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// CreateCardRequest is the request body for adding a card to the open canvas.
// Missing geometry gets the engine's documented defaults.
type CreateCardRequest struct {
	Position *models.Point `json:"position,omitempty"`
	Size     *models.Size  `json:"size,omitempty"`
	Title    string        `json:"title,omitempty"`
	Content  string        `json:"content,omitempty"`
	Color    string        `json:"color,omitempty"`
}

// Validate validates the request.
func (r CreateCardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Length(0, 500)),
	)
}

// UpdateCardRequest carries optional card field updates.
type UpdateCardRequest struct {
	Position *models.Point `json:"position,omitempty"`
	Size     *models.Size  `json:"size,omitempty"`
	Title    *string       `json:"title,omitempty"`
	Content  *string       `json:"content,omitempty"`
	Color    *string       `json:"color,omitempty"`
}

// CreateConnectionRequest is the request body for adding a connection.
type CreateConnectionRequest struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Type         string `json:"type,omitempty"`
}

// Validate validates the request.
func (r CreateConnectionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Target, validation.Required),
		validation.Field(&r.SourceHandle, validation.In(handleKeys...)),
		validation.Field(&r.TargetHandle, validation.In(handleKeys...)),
	)
}

// SetModeRequest switches the canvas interaction mode.
type SetModeRequest struct {
	Mode models.CanvasMode `json:"mode"`
}

// Validate validates the request.
func (r SetModeRequest) Validate() error {
	if !r.Mode.Valid() {
		return validation.NewError("validation_mode", "mode must be one of select, pan, connect")
	}
	return nil
}

// ConnectGestureRequest names the card a connect-mode tap landed on.
type ConnectGestureRequest struct {
	CardID string `json:"cardId"`
}

// Validate validates the request.
func (r ConnectGestureRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CardID, validation.Required),
	)
}

// DragEndRequest commits a card position on drag release.
type DragEndRequest struct {
	Position models.Point `json:"position"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	CardID     string `json:"cardId"`
	NotebookID string `json:"notebookId"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}
