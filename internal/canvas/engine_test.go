package canvas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kingsman007137/Bowen/internal/apperr"
	"github.com/Kingsman007137/Bowen/internal/models"
	"github.com/Kingsman007137/Bowen/internal/snapshot"
	"github.com/Kingsman007137/Bowen/internal/storage"
)

func testEngine(t *testing.T, opts Options) (*Engine, *snapshot.Store) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	snaps := snapshot.NewStore(fs)
	if opts.SaveDebounce == 0 {
		opts.SaveDebounce = time.Hour // keep the debounce out of the way
	}
	return New(snaps, opts), snaps
}

type countRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countRecorder) SetCardCount(notebookID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[notebookID] = n
}

func (c *countRecorder) get(notebookID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[notebookID]
	return n, ok
}

func open(t *testing.T, e *Engine, notebookID string) {
	t.Helper()
	if err := e.LoadNotebookData(context.Background(), notebookID); err != nil {
		t.Fatalf("LoadNotebookData: %v", err)
	}
}

func TestAddCardDefaults(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")

	card := e.AddCard(CreateCardInput{})

	if card.ID == "" {
		t.Error("empty id")
	}
	if card.NotebookID != "nb1" {
		t.Errorf("NotebookID = %q", card.NotebookID)
	}
	if card.Title != "Untitled card" {
		t.Errorf("Title = %q", card.Title)
	}
	if card.Size.Width != DefaultCardWidth || card.Size.Height != DefaultCardHeight {
		t.Errorf("Size = %+v", card.Size)
	}
	if card.Position.X < 0 || card.Position.X >= spawnRegionWidth ||
		card.Position.Y < 0 || card.Position.Y >= spawnRegionHeight {
		t.Errorf("Position = %+v outside spawn region", card.Position)
	}
	if card.CreatedAt == 0 || card.UpdatedAt != card.CreatedAt {
		t.Errorf("timestamps: created=%d updated=%d", card.CreatedAt, card.UpdatedAt)
	}
}

func TestAddCardExplicitGeometry(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")

	pos := models.Point{X: 12, Y: 34}
	size := models.Size{Width: 500, Height: 250}
	card := e.AddCard(CreateCardInput{Position: &pos, Size: &size, Title: "Named"})

	if card.Position != pos || card.Size != size || card.Title != "Named" {
		t.Errorf("card = %+v", card)
	}
}

func TestUpdateCardMergesAndStampsUpdatedAt(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	card := e.AddCard(CreateCardInput{Title: "Before"})

	time.Sleep(2 * time.Millisecond)
	title := "After"
	e.UpdateCard(card.ID, CardPatch{Title: &title})

	got, err := e.GetCard(card.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Title != "After" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.UpdatedAt <= card.UpdatedAt {
		t.Error("UpdatedAt not advanced")
	}
	if got.CreatedAt != card.CreatedAt {
		t.Error("CreatedAt changed")
	}
}

func TestUpdateCardEmptyPatchStillTouches(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	card := e.AddCard(CreateCardInput{})

	time.Sleep(2 * time.Millisecond)
	e.UpdateCard(card.ID, CardPatch{})

	got, _ := e.GetCard(card.ID)
	if got.UpdatedAt <= card.UpdatedAt {
		t.Error("empty patch should still refresh UpdatedAt")
	}
}

func TestUpdateCardMissingIsNoop(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	title := "x"
	e.UpdateCard("no-such-card", CardPatch{Title: &title})
	if n := len(e.State().Cards); n != 0 {
		t.Errorf("cards = %d, want 0", n)
	}
}

func TestDeleteCardCascadesConnections(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{Title: "A"})
	b := e.AddCard(CreateCardInput{Title: "B"})
	c := e.AddCard(CreateCardInput{Title: "C"})

	if _, err := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: b.ID}); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if _, err := e.AddConnection(CreateConnectionInput{Source: b.ID, Target: c.ID}); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	surviving, err := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: c.ID})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}

	e.DeleteCard(b.ID)

	state := e.State()
	if len(state.Cards) != 2 {
		t.Errorf("cards = %d, want 2", len(state.Cards))
	}
	if len(state.Connections) != 1 || state.Connections[0].ID != surviving.ID {
		t.Errorf("connections = %+v, want only %s", state.Connections, surviving.ID)
	}
	for _, conn := range state.Connections {
		if conn.Source == b.ID || conn.Target == b.ID {
			t.Errorf("dangling connection %+v", conn)
		}
	}
}

func TestDeleteCardClearsPendingConnectSource(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})

	e.StartConnecting(a.ID)
	e.DeleteCard(a.ID)

	if e.ConnectingFrom() != "" {
		t.Error("pending source survived deletion of its card")
	}
}

func TestAddConnectionRejectsSelfLoop(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})

	_, err := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: a.ID})
	if !errors.Is(err, apperr.ErrSelfConnection) {
		t.Errorf("err = %v, want ErrSelfConnection", err)
	}
	if len(e.State().Connections) != 0 {
		t.Error("self-loop was stored")
	}
}

func TestAddConnectionDedupes(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})
	b := e.AddCard(CreateCardInput{})

	first, err := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: b.ID})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	second, err := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: b.ID})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate created new edge %s, want existing %s", second.ID, first.ID)
	}
	if len(e.State().Connections) != 1 {
		t.Errorf("connections = %d, want 1", len(e.State().Connections))
	}

	// Different handles are a distinct edge, not a duplicate.
	third, err := e.AddConnection(CreateConnectionInput{
		Source: a.ID, Target: b.ID,
		SourceHandle: models.HandleRight, TargetHandle: models.HandleLeft,
	})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if third.ID == first.ID {
		t.Error("edge with different handles collapsed into existing one")
	}
}

func TestConnectGestureHappyPath(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})
	b := e.AddCard(CreateCardInput{})

	e.SetMode(models.ModeConnect)
	e.StartConnecting(a.ID)
	if e.ConnectingFrom() != a.ID {
		t.Fatalf("ConnectingFrom = %q", e.ConnectingFrom())
	}

	conn, ok := e.FinishConnecting(b.ID)
	if !ok {
		t.Fatal("gesture did not create a connection")
	}
	if conn.Source != a.ID || conn.Target != b.ID {
		t.Errorf("conn = %+v", conn)
	}
	if e.ConnectingFrom() != "" {
		t.Error("machine not back to idle")
	}
}

func TestConnectGestureSelfTargetReturnsToIdle(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})

	e.StartConnecting(a.ID)
	_, ok := e.FinishConnecting(a.ID)
	if ok {
		t.Error("self-target created a connection")
	}
	if e.ConnectingFrom() != "" {
		t.Error("machine stuck awaiting target after self tap")
	}
	if len(e.State().Connections) != 0 {
		t.Error("connection stored for self gesture")
	}
}

func TestFinishConnectingWithoutStart(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})

	if _, ok := e.FinishConnecting(a.ID); ok {
		t.Error("finish without pending source created a connection")
	}
}

func TestCancelConnecting(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})

	e.StartConnecting(a.ID)
	e.CancelConnecting()
	if e.ConnectingFrom() != "" {
		t.Error("cancel did not clear pending source")
	}
}

func TestSetModeClearsPendingSource(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})

	e.SetMode(models.ModeConnect)
	e.StartConnecting(a.ID)
	e.SetMode(models.ModeSelect)

	if e.ConnectingFrom() != "" {
		t.Error("mode switch left a pending source")
	}
	if e.Mode() != models.ModeSelect {
		t.Errorf("Mode = %q", e.Mode())
	}
}

func TestLoadMissingNotebookYieldsEmptyCanvas(t *testing.T) {
	e, _ := testEngine(t, Options{})
	open(t, e, "never-saved")

	state := e.State()
	if state.NotebookID != "never-saved" {
		t.Errorf("NotebookID = %q", state.NotebookID)
	}
	if len(state.Cards) != 0 || len(state.Connections) != 0 {
		t.Errorf("state = %+v, want empty", state)
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	e, snaps := testEngine(t, Options{})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{Title: "A"})
	b := e.AddCard(CreateCardInput{Title: "B"})
	if _, err := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: b.ID}); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}

	if err := e.SaveNotebookData(context.Background()); err != nil {
		t.Fatalf("SaveNotebookData: %v", err)
	}

	state, err := snaps.Load("nb1")
	if err != nil || state == nil {
		t.Fatalf("Load: %v %v", state, err)
	}
	if len(state.Cards) != 2 || len(state.Connections) != 1 {
		t.Errorf("persisted %d cards / %d connections", len(state.Cards), len(state.Connections))
	}

	// Switch away and back; the canvas is restored from disk.
	open(t, e, "other")
	open(t, e, "nb1")
	got := e.State()
	if len(got.Cards) != 2 || len(got.Connections) != 1 {
		t.Errorf("reloaded %d cards / %d connections", len(got.Cards), len(got.Connections))
	}
}

func TestSaveReconcilesCardCount(t *testing.T) {
	counts := &countRecorder{}
	e, _ := testEngine(t, Options{Counts: counts})
	open(t, e, "nb1")
	e.AddCard(CreateCardInput{})
	e.AddCard(CreateCardInput{})

	if err := e.SaveNotebookData(context.Background()); err != nil {
		t.Fatalf("SaveNotebookData: %v", err)
	}
	if n, ok := counts.get("nb1"); !ok || n != 2 {
		t.Errorf("card count = %d (%v), want 2", n, ok)
	}
}

func TestDebouncedSaveFires(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	snaps := snapshot.NewStore(fs)
	e := New(snaps, Options{SaveDebounce: 20 * time.Millisecond})
	open(t, e, "nb1")

	e.AddCard(CreateCardInput{Title: "Burst 1"})
	e.AddCard(CreateCardInput{Title: "Burst 2"})

	deadline := time.Now().Add(time.Second)
	for {
		state, _ := snaps.Load("nb1")
		if state != nil && len(state.Cards) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced save never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSwitchFlushesPreviousNotebook(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	snaps := snapshot.NewStore(fs)
	e := New(snaps, Options{SaveDebounce: time.Hour})
	open(t, e, "nb1")
	e.AddCard(CreateCardInput{Title: "Unsaved edit"})

	// Opening another notebook must not lose nb1's pending work.
	open(t, e, "nb2")

	state, err := snaps.Load("nb1")
	if err != nil || state == nil {
		t.Fatalf("nb1 snapshot missing after switch: %v %v", state, err)
	}
	if len(state.Cards) != 1 {
		t.Errorf("persisted %d cards, want 1", len(state.Cards))
	}
}

func TestClearResetsEverything(t *testing.T) {
	e, snaps := testEngine(t, Options{})
	open(t, e, "nb1")
	e.AddCard(CreateCardInput{})
	e.SetMode(models.ModeConnect)

	e.Clear()

	state := e.State()
	if state.NotebookID != "" || len(state.Cards) != 0 || len(state.Connections) != 0 {
		t.Errorf("state after clear = %+v", state)
	}
	if state.Mode != models.ModeSelect {
		t.Errorf("mode = %q, want select", state.Mode)
	}

	// The pending save was flushed, not dropped.
	persisted, _ := snaps.Load("nb1")
	if persisted == nil || len(persisted.Cards) != 1 {
		t.Error("pending edit lost by Clear")
	}
}

func TestEngineEmitsEvents(t *testing.T) {
	var mu sync.Mutex
	var kinds []string
	notify := func(kind string, _ map[string]string) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}

	e, _ := testEngine(t, Options{Notify: notify})
	open(t, e, "nb1")
	a := e.AddCard(CreateCardInput{})
	b := e.AddCard(CreateCardInput{})
	conn, _ := e.AddConnection(CreateConnectionInput{Source: a.ID, Target: b.ID})
	e.DeleteConnection(conn.ID)
	e.DeleteCard(b.ID)
	_ = e.SaveNotebookData(context.Background())

	want := []string{
		"canvas.loaded",
		"card.created", "card.created",
		"connection.created", "connection.deleted",
		"card.deleted",
		"canvas.saved",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}
