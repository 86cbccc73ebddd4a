// Package viewport is the bidirectional projection between the canvas state
// engine and a renderable positioned graph: it turns cards/connections into
// nodes/edges for the client and translates pointer gestures back into engine
// mutation calls. Camera state (zoom/pan) is view-layer only, reset per
// session, and never persisted as canvas data.
package viewport

import (
	"sync"

	"github.com/Kingsman007137/Bowen/internal/canvas"
	"github.com/Kingsman007137/Bowen/internal/models"
)

// Zoom bounds and default, matching the client's zoom controls.
const (
	MinZoom     = 0.25
	MaxZoom     = 2.0
	DefaultZoom = 1.0

	// fitPadding is the margin kept around the bounding box on fit-to-view.
	fitPadding = 40.0
)

// Node is a positioned renderable card.
type Node struct {
	ID       string       `json:"id"`
	Position models.Point `json:"position"`
	Size     models.Size  `json:"size"`
	Title    string       `json:"title"`
	Color    string       `json:"color,omitempty"`
}

// Edge is a renderable directed connection with its anchor handles.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Type         string `json:"type"`
}

// Graph is the full renderable projection of one canvas.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Transform is a camera position: the canvas-space translation and zoom the
// client should apply.
type Transform struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Project renders cards and connections into a graph.
func Project(cards []models.Card, connections []models.Connection) Graph {
	nodes := make([]Node, len(cards))
	for i, c := range cards {
		nodes[i] = Node{
			ID:       c.ID,
			Position: c.Position,
			Size:     c.Size,
			Title:    c.Title,
			Color:    c.Color,
		}
	}
	edges := make([]Edge, len(connections))
	for i, conn := range connections {
		edges[i] = Edge{
			ID:           conn.ID,
			Source:       conn.Source,
			Target:       conn.Target,
			SourceHandle: conn.SourceHandle,
			TargetHandle: conn.TargetHandle,
			Type:         conn.Type,
		}
	}
	return Graph{Nodes: nodes, Edges: edges}
}

// ClampZoom bounds z to the supported zoom range.
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// FitToView computes the camera transform that frames the bounding box of all
// cards inside a viewport of the given pixel dimensions. An empty canvas (or
// degenerate viewport) centers at the origin with the default zoom.
func FitToView(cards []models.Card, viewportW, viewportH float64) Transform {
	if len(cards) == 0 || viewportW <= 0 || viewportH <= 0 {
		return Transform{Zoom: DefaultZoom}
	}

	minX, minY := cards[0].Position.X, cards[0].Position.Y
	maxX := cards[0].Position.X + cards[0].Size.Width
	maxY := cards[0].Position.Y + cards[0].Size.Height
	for _, c := range cards[1:] {
		if c.Position.X < minX {
			minX = c.Position.X
		}
		if c.Position.Y < minY {
			minY = c.Position.Y
		}
		if x := c.Position.X + c.Size.Width; x > maxX {
			maxX = x
		}
		if y := c.Position.Y + c.Size.Height; y > maxY {
			maxY = y
		}
	}

	boxW := maxX - minX + 2*fitPadding
	boxH := maxY - minY + 2*fitPadding

	zoom := viewportW / boxW
	if z := viewportH / boxH; z < zoom {
		zoom = z
	}
	zoom = ClampZoom(zoom)

	// Center the box in the viewport at the chosen zoom.
	centerX := (minX + maxX) / 2
	centerY := (minY + maxY) / 2
	return Transform{
		X:    viewportW/2 - centerX*zoom,
		Y:    viewportH/2 - centerY*zoom,
		Zoom: zoom,
	}
}

// Adapter binds a camera and gesture translation to one engine. Gestures are
// gated by the engine's mode; the engine itself accepts every mutation
// regardless.
type Adapter struct {
	mu     sync.Mutex
	engine *canvas.Engine
	camera Transform
}

// NewAdapter creates an adapter over the engine with a default camera.
func NewAdapter(engine *canvas.Engine) *Adapter {
	return &Adapter{engine: engine, camera: Transform{Zoom: DefaultZoom}}
}

// Graph projects the engine's current state.
func (a *Adapter) Graph() Graph {
	st := a.engine.State()
	return Project(st.Cards, st.Connections)
}

// Camera returns the current (session-local) camera transform.
func (a *Adapter) Camera() Transform {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.camera
}

// SetZoom sets the camera zoom, clamped to the supported range.
func (a *Adapter) SetZoom(z float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera.Zoom = ClampZoom(z)
}

// SetPan sets the camera translation.
func (a *Adapter) SetPan(x, y float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera.X = x
	a.camera.Y = y
}

// ResetView restores the default camera.
func (a *Adapter) ResetView() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = Transform{Zoom: DefaultZoom}
}

// Fit frames all current cards in a viewport of the given dimensions and
// makes that the camera. Invoked on initial notebook load and on request.
func (a *Adapter) Fit(viewportW, viewportH float64) Transform {
	st := a.engine.State()
	t := FitToView(st.Cards, viewportW, viewportH)
	a.mu.Lock()
	a.camera = t
	a.mu.Unlock()
	return t
}

// DragEnd commits a card's position on drag release. Intermediate drag
// frames never reach the engine, so a drag is one mutation, not hundreds.
func (a *Adapter) DragEnd(cardID string, pos models.Point) {
	a.engine.UpdateCard(cardID, canvas.CardPatch{Position: &pos})
}

// TapCard interprets a card tap under the current mode. In connect mode the
// first tap arms the pending source and the second completes (or, on the same
// card, abandons) the connection. Other modes leave state untouched.
func (a *Adapter) TapCard(cardID string) (models.Connection, bool) {
	if a.engine.Mode() != models.ModeConnect {
		return models.Connection{}, false
	}
	if a.engine.ConnectingFrom() == "" {
		a.engine.StartConnecting(cardID)
		return models.Connection{}, false
	}
	return a.engine.FinishConnecting(cardID)
}

// TapCanvas interprets a tap on empty canvas: in connect mode it cancels the
// pending connection.
func (a *Adapter) TapCanvas() {
	if a.engine.Mode() == models.ModeConnect {
		a.engine.CancelConnecting()
	}
}

// RemoveEdge handles the edge-removal gesture.
func (a *Adapter) RemoveEdge(edgeID string) {
	a.engine.DeleteConnection(edgeID)
}
