package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Kingsman007137/Bowen/internal/canvas"
	"github.com/Kingsman007137/Bowen/internal/index"
	"github.com/Kingsman007137/Bowen/internal/models"
	"github.com/Kingsman007137/Bowen/internal/registry"
	"github.com/Kingsman007137/Bowen/internal/snapshot"
	"github.com/Kingsman007137/Bowen/internal/storage"
	"github.com/Kingsman007137/Bowen/internal/viewport"
)

// testEnv sets up a temp data dir, SQLite DB, engine, registry, and router.
// authToken="" means disabled mode; non-empty means token mode.
func testEnv(t *testing.T, authToken string) (*canvas.Engine, *registry.Registry, http.Handler) {
	t.Helper()

	dataDir := t.TempDir()
	store, err := storage.NewFS(dataDir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	snaps := snapshot.NewStore(store)

	dbFile, err := os.CreateTemp("", "bowen-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := registry.New(store, snaps, nil)
	engine := canvas.New(snaps, canvas.Options{SaveDebounce: time.Hour, Counts: reg})
	adapter := viewport.NewAdapter(engine)

	ah, err := NewAttachmentHandler(dataDir)
	if err != nil {
		t.Fatalf("NewAttachmentHandler: %v", err)
	}

	h := NewHandler(engine, reg, db, adapter, nil)
	router := NewRouter(h, ah, authToken != "", authToken, nil)
	return engine, reg, router
}

func do(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createNotebook(t *testing.T, router http.Handler, name string) models.Notebook {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notebooks", map[string]string{"name": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create notebook = %d, body = %s", w.Code, w.Body.String())
	}
	var nb models.Notebook
	if err := json.Unmarshal(w.Body.Bytes(), &nb); err != nil {
		t.Fatal(err)
	}
	return nb
}

func openCanvas(t *testing.T, router http.Handler, notebookID string) {
	t.Helper()
	w := do(t, router, http.MethodPost, "/canvas/"+notebookID+"/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open canvas = %d, body = %s", w.Code, w.Body.String())
	}
}

func createCard(t *testing.T, router http.Handler, payload any) models.Card {
	t.Helper()
	w := do(t, router, http.MethodPost, "/canvas/cards", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("create card = %d, body = %s", w.Code, w.Body.String())
	}
	var card models.Card
	if err := json.Unmarshal(w.Body.Bytes(), &card); err != nil {
		t.Fatal(err)
	}
	return card
}

func TestNotebookCRUD(t *testing.T) {
	_, _, router := testEnv(t, "")

	nb := createNotebook(t, router, "Reading list")
	if nb.ID == "" || nb.Gradient == "" {
		t.Errorf("notebook = %+v", nb)
	}

	// Get.
	w := do(t, router, http.MethodGet, "/notebooks/"+nb.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	// List.
	w = do(t, router, http.MethodGet, "/notebooks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list struct {
		Notebooks []models.Notebook `json:"notebooks"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Notebooks) != 1 {
		t.Errorf("notebooks = %d, want 1", len(list.Notebooks))
	}

	// Rename.
	w = do(t, router, http.MethodPatch, "/notebooks/"+nb.ID, map[string]string{"name": "Renamed"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/notebooks/"+nb.ID, nil)
	var got models.Notebook
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}

	// Delete.
	w = do(t, router, http.MethodDelete, "/notebooks/"+nb.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/notebooks/"+nb.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", w.Code)
	}
}

func TestCreateNotebookValidation(t *testing.T) {
	_, _, router := testEnv(t, "")

	// Missing name.
	w := do(t, router, http.MethodPost, "/notebooks", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name = %d, want 400", w.Code)
	}

	// Unknown gradient key.
	w = do(t, router, http.MethodPost, "/notebooks", map[string]string{"name": "X", "gradient": "plaid"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad gradient = %d, want 400", w.Code)
	}

	// Palette keys pass validation.
	w = do(t, router, http.MethodPost, "/notebooks", map[string]string{"name": "X", "gradient": "indigo"})
	if w.Code != http.StatusCreated {
		t.Errorf("palette gradient = %d, want 201, body = %s", w.Code, w.Body.String())
	}

	// Unknown folder id.
	w = do(t, router, http.MethodPost, "/notebooks", map[string]string{"name": "X", "folderId": "nope"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad folder = %d, want 400", w.Code)
	}
}

func TestFolderLifecycle(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/folders", map[string]string{"name": "Work"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create folder = %d", w.Code)
	}
	var folder models.Folder
	_ = json.Unmarshal(w.Body.Bytes(), &folder)

	// A notebook filed into the folder bumps its count.
	w = do(t, router, http.MethodPost, "/notebooks", map[string]string{"name": "Filed", "folderId": folder.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create notebook = %d", w.Code)
	}
	var nb models.Notebook
	_ = json.Unmarshal(w.Body.Bytes(), &nb)

	w = do(t, router, http.MethodGet, "/folders", nil)
	var list struct {
		Folders []models.Folder `json:"folders"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Folders) != 1 || list.Folders[0].NotebookCount != 1 {
		t.Errorf("folders = %+v", list.Folders)
	}

	// Rename.
	w = do(t, router, http.MethodPatch, "/folders/"+folder.ID, map[string]string{"name": "Life"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rename = %d", w.Code)
	}

	// Delete reassigns the notebook, not deletes it.
	w = do(t, router, http.MethodDelete, "/folders/"+folder.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete folder = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/notebooks/"+nb.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("notebook gone with folder: %d", w.Code)
	}
	var got models.Notebook
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.FolderID != "" {
		t.Errorf("folderId = %q, want cleared", got.FolderID)
	}
}

func TestCanvasFlow(t *testing.T) {
	_, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Canvas")
	openCanvas(t, router, nb.ID)

	// Create two cards and connect them.
	a := createCard(t, router, map[string]string{"title": "A"})
	b := createCard(t, router, map[string]string{"title": "B"})

	w := do(t, router, http.MethodPost, "/canvas/connections", map[string]string{"source": a.ID, "target": b.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("connect = %d, body = %s", w.Code, w.Body.String())
	}
	var conn models.Connection
	_ = json.Unmarshal(w.Body.Bytes(), &conn)

	// State reflects both.
	w = do(t, router, http.MethodGet, "/canvas", nil)
	var state canvas.State
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if len(state.Cards) != 2 || len(state.Connections) != 1 {
		t.Fatalf("state = %+v", state)
	}

	// Deleting card A cascades its connection.
	w = do(t, router, http.MethodDelete, "/canvas/cards/"+a.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete card = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/canvas", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if len(state.Cards) != 1 || len(state.Connections) != 0 {
		t.Errorf("state after cascade = %+v", state)
	}

	// Explicit save persists and reconciles card count.
	w = do(t, router, http.MethodPost, "/canvas/save", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("save = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/notebooks/"+nb.ID, nil)
	var got models.Notebook
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.CardCount != 1 {
		t.Errorf("cardCount = %d, want 1", got.CardCount)
	}
}

func TestCardOperationsRequireOpenNotebook(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/canvas/cards", map[string]string{"title": "Orphan"})
	if w.Code != http.StatusConflict {
		t.Errorf("create card = %d, want 409", w.Code)
	}
	w = do(t, router, http.MethodPost, "/canvas/connections", map[string]string{"source": "a", "target": "b"})
	if w.Code != http.StatusConflict {
		t.Errorf("create connection = %d, want 409", w.Code)
	}
	w = do(t, router, http.MethodPost, "/canvas/save", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("save = %d, want 409", w.Code)
	}
}

func TestOpenUnknownNotebook(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/canvas/nope/open", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("open = %d, want 404", w.Code)
	}
}

func TestSelfConnectionRejected(t *testing.T) {
	_, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Loops")
	openCanvas(t, router, nb.ID)
	a := createCard(t, router, map[string]string{"title": "A"})

	w := do(t, router, http.MethodPost, "/canvas/connections", map[string]string{"source": a.ID, "target": a.ID})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("self connection = %d, want 422", w.Code)
	}
}

func TestDuplicateConnectionReturnsExisting(t *testing.T) {
	_, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Dupes")
	openCanvas(t, router, nb.ID)
	a := createCard(t, router, map[string]string{"title": "A"})
	b := createCard(t, router, map[string]string{"title": "B"})

	payload := map[string]string{"source": a.ID, "target": b.ID}
	w := do(t, router, http.MethodPost, "/canvas/connections", payload)
	var first models.Connection
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	w = do(t, router, http.MethodPost, "/canvas/connections", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("duplicate = %d", w.Code)
	}
	var second models.Connection
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	if second.ID != first.ID {
		t.Errorf("duplicate created %s, want existing %s", second.ID, first.ID)
	}
}

func TestConnectGestureEndpoints(t *testing.T) {
	engine, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Gestures")
	openCanvas(t, router, nb.ID)
	a := createCard(t, router, map[string]string{"title": "A"})
	b := createCard(t, router, map[string]string{"title": "B"})

	w := do(t, router, http.MethodPost, "/canvas/mode", map[string]string{"mode": "connect"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set mode = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/canvas/connect/start", map[string]string{"cardId": a.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("start = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/canvas/connect/finish", map[string]string{"cardId": b.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("finish = %d, body = %s", w.Code, w.Body.String())
	}
	var conn models.Connection
	_ = json.Unmarshal(w.Body.Bytes(), &conn)
	if conn.Source != a.ID || conn.Target != b.ID {
		t.Errorf("conn = %+v", conn)
	}

	// A finish with nothing pending is a 204, not an error.
	w = do(t, router, http.MethodPost, "/canvas/connect/finish", map[string]string{"cardId": b.ID})
	if w.Code != http.StatusNoContent {
		t.Errorf("idle finish = %d, want 204", w.Code)
	}

	// Cancel clears a pending source.
	w = do(t, router, http.MethodPost, "/canvas/connect/start", map[string]string{"cardId": a.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("start = %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/canvas/connect/cancel", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel = %d", w.Code)
	}
	if engine.ConnectingFrom() != "" {
		t.Error("pending source survived cancel")
	}
}

func TestSetModeValidation(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/canvas/mode", map[string]string{"mode": "teleport"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad mode = %d, want 400", w.Code)
	}
}

func TestUpdateCard(t *testing.T) {
	engine, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Edits")
	openCanvas(t, router, nb.ID)
	card := createCard(t, router, map[string]string{"title": "Before"})

	w := do(t, router, http.MethodPatch, "/canvas/cards/"+card.ID, map[string]any{
		"title":   "After",
		"content": "<p>new body</p>",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("patch = %d", w.Code)
	}

	got, err := engine.GetCard(card.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Title != "After" || got.Content != "<p>new body</p>" {
		t.Errorf("card = %+v", got)
	}
}

func TestDragEndEndpoint(t *testing.T) {
	engine, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Drag")
	openCanvas(t, router, nb.ID)
	card := createCard(t, router, map[string]string{"title": "Movable"})

	w := do(t, router, http.MethodPost, "/canvas/cards/"+card.ID+"/drag-end", map[string]any{
		"position": map[string]float64{"x": 640, "y": 480},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("drag-end = %d", w.Code)
	}

	got, _ := engine.GetCard(card.ID)
	if got.Position.X != 640 || got.Position.Y != 480 {
		t.Errorf("position = %+v", got.Position)
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, _, router := testEnv(t, "")
	nb := createNotebook(t, router, "Graph")
	openCanvas(t, router, nb.ID)
	createCard(t, router, map[string]any{
		"title":    "Node",
		"position": map[string]float64{"x": 100, "y": 100},
	})

	w := do(t, router, http.MethodGet, "/canvas/graph?fit=1&w=800&h=600", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var resp struct {
		Graph  viewport.Graph     `json:"graph"`
		Camera viewport.Transform `json:"camera"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Graph.Nodes) != 1 {
		t.Errorf("nodes = %+v", resp.Graph.Nodes)
	}
	if resp.Camera.Zoom < viewport.MinZoom || resp.Camera.Zoom > viewport.MaxZoom {
		t.Errorf("camera zoom = %v out of range", resp.Camera.Zoom)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, _, router := testEnv(t, "")

	// No query parameter.
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}

	// Empty index returns an empty result list, not an error.
	w = do(t, router, http.MethodGet, "/search?q=anything", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 0 {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, _, router := testEnv(t, "sekrit")

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	// Wrong token.
	req = httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	// Correct token.
	req = httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAttachmentUpload(t *testing.T) {
	_, _, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "shot.png")
	if err != nil {
		t.Fatal(err)
	}
	// Minimal PNG header; content is not validated beyond the extension.
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AttachmentUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename == "" || resp.URL != "/attachments/"+resp.Filename {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAttachmentUploadRejectsExtension(t *testing.T) {
	_, _, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "evil.exe")
	_, _ = part.Write([]byte("MZ"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("exe upload = %d, want 400", w.Code)
	}
}

func TestSwitchingNotebooksIsolatesCanvases(t *testing.T) {
	_, _, router := testEnv(t, "")
	first := createNotebook(t, router, "First")
	second := createNotebook(t, router, "Second")

	openCanvas(t, router, first.ID)
	createCard(t, router, map[string]string{"title": "Only in first"})

	openCanvas(t, router, second.ID)
	w := do(t, router, http.MethodGet, "/canvas", nil)
	var state canvas.State
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if state.NotebookID != second.ID || len(state.Cards) != 0 {
		t.Errorf("state = %+v, want empty canvas for second notebook", state)
	}

	// Switching back restores the first notebook's card.
	openCanvas(t, router, first.ID)
	w = do(t, router, http.MethodGet, "/canvas", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if len(state.Cards) != 1 {
		t.Errorf("cards = %d, want 1 after reopening", len(state.Cards))
	}
}
