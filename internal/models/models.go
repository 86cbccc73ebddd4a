// Package models defines the domain types for Bowen.
package models

// Point is a position on the infinite canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the rendered extent of a card.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Card is a positioned, sized, titled rich-content unit belonging to one
// notebook. Content is an opaque rich-HTML blob produced by the editor; the
// engine never interprets its structure.
type Card struct {
	ID         string `json:"id"`
	NotebookID string `json:"notebookId"`
	Position   Point  `json:"position"`
	Size       Size   `json:"size"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Color      string `json:"color,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// Connection anchor handles. Handles are purely presentational: they name the
// side of each card's boundary the edge visually attaches to.
const (
	HandleTop    = "top"
	HandleRight  = "right"
	HandleBottom = "bottom"
	HandleLeft   = "left"
)

// Connection is a directed edge between two cards in the same notebook.
// Source and Target must reference cards present in that notebook's card set;
// self-loops are rejected at creation.
type Connection struct {
	ID           string `json:"id"`
	NotebookID   string `json:"notebookId"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Type         string `json:"type"`
}

// CanvasState is the persisted unit for one notebook's canvas.
// LastSaved is epoch milliseconds, stamped by the snapshot store on save.
type CanvasState struct {
	NotebookID  string       `json:"notebookId"`
	Cards       []Card       `json:"cards"`
	Connections []Connection `json:"connections"`
	LastSaved   int64        `json:"lastSaved"`
}

// Notebook is a named collection of cards/connections forming one canvas.
// CardCount is a denormalized display statistic reconciled on every canvas
// save; FolderID is a weak reference cleared when the folder goes away.
type Notebook struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FolderID  string `json:"folderId,omitempty"`
	CardCount int    `json:"cardCount"`
	Gradient  string `json:"gradient"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Folder groups notebooks (non-nesting). NotebookCount is maintained on
// notebook add/delete and never goes negative.
type Folder struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	NotebookCount int    `json:"notebookCount"`
	CreatedAt     int64  `json:"createdAt"`
}

// CanvasMode governs how the viewport adapter interprets pointer input.
// The engine exposes every mutation regardless of mode; mode only gates
// which interactions the adapter dispatches.
type CanvasMode string

const (
	ModeSelect  CanvasMode = "select"
	ModePan     CanvasMode = "pan"
	ModeConnect CanvasMode = "connect"
)

// Valid reports whether m is one of the defined canvas modes.
func (m CanvasMode) Valid() bool {
	switch m {
	case ModeSelect, ModePan, ModeConnect:
		return true
	}
	return false
}

// GradientKeys is the fixed palette notebooks pick their cover gradient from.
var GradientKeys = [10]string{
	"blue", "purple", "pink", "orange", "green",
	"teal", "cyan", "indigo", "rose", "amber",
}
