// Package canvas implements the canvas state engine: the in-memory model of
// the active notebook's cards and connections, its mutation operations, the
// connect-mode state machine, and the debounced persistence pipeline.
package canvas

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Kingsman007137/Bowen/internal/apperr"
	"github.com/Kingsman007137/Bowen/internal/ident"
	"github.com/Kingsman007137/Bowen/internal/models"
	"github.com/Kingsman007137/Bowen/internal/snapshot"
)

// Defaults for cards created without explicit geometry. New cards land at a
// pseudo-random point inside a small bounded region so they do not all stack
// at the origin.
const (
	DefaultCardWidth  = 300
	DefaultCardHeight = 180
	spawnRegionWidth  = 400
	spawnRegionHeight = 300
	defaultCardTitle  = "Untitled card"
)

// EventFunc receives engine events: card.created/updated/deleted,
// connection.created/deleted, canvas.loaded, canvas.saved, canvas.save_failed.
type EventFunc func(kind string, data map[string]string)

// CardCounter is notified of the live card count after each successful save,
// so the registry's denormalized cardCount cannot drift.
type CardCounter interface {
	SetCardCount(notebookID string, n int)
}

// Options configures an Engine.
type Options struct {
	// SaveDebounce is the quiet period before a scheduled save fires.
	// Zero means one second.
	SaveDebounce time.Duration
	Logger       *slog.Logger
	Notify       EventFunc   // may be nil
	Counts       CardCounter // may be nil
}

// Engine owns the active notebook's canvas state. All mutations are
// synchronous and atomic under one mutex; only snapshot I/O suspends.
type Engine struct {
	mu             sync.Mutex
	notebookID     string
	cards          []models.Card
	connections    []models.Connection
	mode           models.CanvasMode
	connectingFrom string

	snapshots *snapshot.Store
	sched     *Scheduler
	logger    *slog.Logger
	notify    EventFunc
	counts    CardCounter
}

// New creates an engine persisting through snapshots.
func New(snapshots *snapshot.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		mode:      models.ModeSelect,
		snapshots: snapshots,
		logger:    logger,
		notify:    opts.Notify,
		counts:    opts.Counts,
	}
	e.sched = NewScheduler(opts.SaveDebounce, func(notebookID string) {
		e.mu.Lock()
		current := e.notebookID
		e.mu.Unlock()
		if current != notebookID {
			// Notebook switched between scheduling and firing.
			return
		}
		_ = e.SaveNotebookData(context.Background())
	})
	return e
}

func (e *Engine) emit(kind string, data map[string]string) {
	if e.notify != nil {
		e.notify(kind, data)
	}
}

// State is a read-only view of the engine handed to the viewport adapter.
type State struct {
	NotebookID     string              `json:"notebookId"`
	Cards          []models.Card       `json:"cards"`
	Connections    []models.Connection `json:"connections"`
	Mode           models.CanvasMode   `json:"mode"`
	ConnectingFrom string              `json:"connectingFrom,omitempty"`
}

// State returns a copy of the current canvas state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	cards := make([]models.Card, len(e.cards))
	copy(cards, e.cards)
	conns := make([]models.Connection, len(e.connections))
	copy(conns, e.connections)
	return State{
		NotebookID:     e.notebookID,
		Cards:          cards,
		Connections:    conns,
		Mode:           e.mode,
		ConnectingFrom: e.connectingFrom,
	}
}

// CurrentNotebookID returns the id of the open notebook, or empty.
func (e *Engine) CurrentNotebookID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notebookID
}

// Mode returns the current interaction mode.
func (e *Engine) Mode() models.CanvasMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode switches the interaction mode and discards any pending connect
// source. The engine exposes every mutation regardless of mode; mode only
// gates what the viewport adapter dispatches.
func (e *Engine) SetMode(mode models.CanvasMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.connectingFrom = ""
}

// ConnectingFrom returns the pending connect-mode source card id, or empty.
func (e *Engine) ConnectingFrom() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectingFrom
}

// CreateCardInput holds optional fields for AddCard; nil geometry gets the
// documented defaults.
type CreateCardInput struct {
	NotebookID string
	Position   *models.Point
	Size       *models.Size
	Title      string
	Content    string
	Color      string
}

// AddCard creates a card with a fresh id and both timestamps set to now.
func (e *Engine) AddCard(input CreateCardInput) models.Card {
	e.mu.Lock()
	defer e.mu.Unlock()

	notebookID := input.NotebookID
	if notebookID == "" {
		notebookID = e.notebookID
	}
	pos := models.Point{
		X: rand.Float64() * spawnRegionWidth,
		Y: rand.Float64() * spawnRegionHeight,
	}
	if input.Position != nil {
		pos = *input.Position
	}
	size := models.Size{Width: DefaultCardWidth, Height: DefaultCardHeight}
	if input.Size != nil {
		size = *input.Size
	}
	title := input.Title
	if title == "" {
		title = defaultCardTitle
	}
	now := time.Now().UnixMilli()
	card := models.Card{
		ID:         ident.New(),
		NotebookID: notebookID,
		Position:   pos,
		Size:       size,
		Title:      title,
		Content:    input.Content,
		Color:      input.Color,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e.cards = append(e.cards, card)
	e.sched.Schedule(e.notebookID)
	e.emit("card.created", map[string]string{"id": card.ID, "notebook_id": notebookID})
	return card
}

// CardPatch holds optional field updates for UpdateCard; nil fields are left
// untouched.
type CardPatch struct {
	Position *models.Point
	Size     *models.Size
	Title    *string
	Content  *string
	Color    *string
}

// UpdateCard shallow-merges patch into the card and refreshes UpdatedAt.
// Silent no-op when the id is absent, which keeps the UI resilient to stale
// references racing a delete.
func (e *Engine) UpdateCard(id string, patch CardPatch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.cards {
		if e.cards[i].ID != id {
			continue
		}
		if patch.Position != nil {
			e.cards[i].Position = *patch.Position
		}
		if patch.Size != nil {
			e.cards[i].Size = *patch.Size
		}
		if patch.Title != nil {
			e.cards[i].Title = *patch.Title
		}
		if patch.Content != nil {
			e.cards[i].Content = *patch.Content
		}
		if patch.Color != nil {
			e.cards[i].Color = *patch.Color
		}
		e.cards[i].UpdatedAt = time.Now().UnixMilli()
		e.sched.Schedule(e.notebookID)
		e.emit("card.updated", map[string]string{"id": id, "notebook_id": e.notebookID})
		return
	}
}

// GetCard returns a copy of the card with the given id.
func (e *Engine) GetCard(id string) (models.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cards {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Card{}, apperr.ErrNotFound
}

// DeleteCard removes the card and cascades deletion of every connection
// referencing it as source or target. The cascade runs atomically with the
// removal so no connection ever dangles, even transiently.
func (e *Engine) DeleteCard(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i := range e.cards {
		if e.cards[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	e.cards = append(e.cards[:idx], e.cards[idx+1:]...)

	kept := e.connections[:0]
	for _, conn := range e.connections {
		if conn.Source != id && conn.Target != id {
			kept = append(kept, conn)
		}
	}
	e.connections = kept

	if e.connectingFrom == id {
		e.connectingFrom = ""
	}
	e.sched.Schedule(e.notebookID)
	e.emit("card.deleted", map[string]string{"id": id, "notebook_id": e.notebookID})
}

// CreateConnectionInput holds the fields for AddConnection.
type CreateConnectionInput struct {
	NotebookID   string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	Type         string
}

// AddConnection creates a directed edge. Self-loops are rejected with
// ErrSelfConnection. An identical (source, target, sourceHandle,
// targetHandle) tuple is silently deduped: the existing edge is returned and
// no new one is created. Both rules live here so every call path gets the
// same policy.
func (e *Engine) AddConnection(input CreateConnectionInput) (models.Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addConnectionLocked(input)
}

func (e *Engine) addConnectionLocked(input CreateConnectionInput) (models.Connection, error) {
	if input.Source == input.Target {
		return models.Connection{}, apperr.ErrSelfConnection
	}
	for _, conn := range e.connections {
		if conn.Source == input.Source && conn.Target == input.Target &&
			conn.SourceHandle == input.SourceHandle && conn.TargetHandle == input.TargetHandle {
			return conn, nil
		}
	}
	notebookID := input.NotebookID
	if notebookID == "" {
		notebookID = e.notebookID
	}
	connType := input.Type
	if connType == "" {
		connType = "default"
	}
	conn := models.Connection{
		ID:           ident.New(),
		NotebookID:   notebookID,
		Source:       input.Source,
		Target:       input.Target,
		SourceHandle: input.SourceHandle,
		TargetHandle: input.TargetHandle,
		Type:         connType,
	}
	e.connections = append(e.connections, conn)
	e.sched.Schedule(e.notebookID)
	e.emit("connection.created", map[string]string{"id": conn.ID, "notebook_id": notebookID})
	return conn, nil
}

// DeleteConnection removes an edge by id. Silent no-op when absent.
func (e *Engine) DeleteConnection(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.connections {
		if e.connections[i].ID == id {
			e.connections = append(e.connections[:i], e.connections[i+1:]...)
			e.sched.Schedule(e.notebookID)
			e.emit("connection.deleted", map[string]string{"id": id, "notebook_id": e.notebookID})
			return
		}
	}
}

// StartConnecting enters AwaitingTarget with the given source card.
func (e *Engine) StartConnecting(cardID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectingFrom = cardID
}

// FinishConnecting completes the connect gesture. When a source is pending
// and the target differs, the edge is created (deduped) and the machine
// returns to Idle. A target equal to the pending source creates nothing and
// also returns to Idle rather than staying stuck awaiting a target.
func (e *Engine) FinishConnecting(targetCardID string) (models.Connection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	source := e.connectingFrom
	e.connectingFrom = ""
	if source == "" || source == targetCardID {
		return models.Connection{}, false
	}
	conn, err := e.addConnectionLocked(CreateConnectionInput{
		NotebookID: e.notebookID,
		Source:     source,
		Target:     targetCardID,
	})
	if err != nil {
		return models.Connection{}, false
	}
	return conn, true
}

// CancelConnecting returns the connect-mode machine to Idle, discarding the
// pending source.
func (e *Engine) CancelConnecting() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectingFrom = ""
}

// LoadNotebookData opens a notebook: any pending save for the previous
// notebook is flushed first, then the persisted snapshot replaces the
// in-memory state wholesale. Absence or a failed read yields an empty canvas
// for that id; the error is logged, never propagated.
func (e *Engine) LoadNotebookData(ctx context.Context, notebookID string) error {
	e.sched.Flush()

	state, err := e.snapshots.Load(notebookID)
	if err != nil {
		e.logger.Warn("canvas: load failed, starting empty",
			slog.String("notebook_id", notebookID), slog.String("error", err.Error()))
		state = nil
	}

	e.mu.Lock()
	e.notebookID = notebookID
	e.connectingFrom = ""
	if state != nil {
		e.cards = state.Cards
		e.connections = state.Connections
	} else {
		e.cards = nil
		e.connections = nil
	}
	e.mu.Unlock()

	e.emit("canvas.loaded", map[string]string{"notebook_id": notebookID})
	return nil
}

// SaveNotebookData persists the current cards/connections for the open
// notebook. No-op when no notebook is open. A failed write is logged and the
// in-memory state remains authoritative; the error is returned for callers
// that want visibility (the scheduler ignores it).
func (e *Engine) SaveNotebookData(ctx context.Context) error {
	e.mu.Lock()
	notebookID := e.notebookID
	cards := make([]models.Card, len(e.cards))
	copy(cards, e.cards)
	conns := make([]models.Connection, len(e.connections))
	copy(conns, e.connections)
	e.mu.Unlock()

	if notebookID == "" {
		return nil
	}
	if err := e.snapshots.Save(notebookID, cards, conns); err != nil {
		e.logger.Error("canvas: save failed",
			slog.String("notebook_id", notebookID), slog.String("error", err.Error()))
		e.emit("canvas.save_failed", map[string]string{"notebook_id": notebookID})
		return err
	}
	if e.counts != nil {
		e.counts.SetCardCount(notebookID, len(cards))
	}
	e.emit("canvas.saved", map[string]string{"notebook_id": notebookID})
	return nil
}

// Flush runs any pending debounced save synchronously.
func (e *Engine) Flush() {
	e.sched.Flush()
}

// Clear saves any pending work, then resets all canvas fields to their
// defaults. Used when navigating away from the canvas.
func (e *Engine) Clear() {
	e.sched.Flush()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.notebookID = ""
	e.cards = nil
	e.connections = nil
	e.connectingFrom = ""
	e.mode = models.ModeSelect
}
