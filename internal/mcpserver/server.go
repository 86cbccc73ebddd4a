// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Bowen card tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Kingsman007137/Bowen/internal/ident"
	"github.com/Kingsman007137/Bowen/internal/index"
	"github.com/Kingsman007137/Bowen/internal/models"
	"github.com/Kingsman007137/Bowen/internal/registry"
	"github.com/Kingsman007137/Bowen/internal/snapshot"
)

// Server wraps the MCP server with Bowen tools.
type Server struct {
	mcp   *server.MCPServer
	reg   *registry.Registry
	snaps *snapshot.Store
	db    *index.DB
}

// New creates a new MCP server with all Bowen tools registered.
func New(reg *registry.Registry, snaps *snapshot.Store, db *index.DB) *Server {
	s := &Server{reg: reg, snaps: snaps, db: db}

	s.mcp = server.NewMCPServer(
		"Bowen",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through card titles and content across all notebooks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List all notebooks, or notebooks in a specific folder."),
		mcp.WithString("folder_id", mcp.Description("Optional folder id to filter by (empty for all)")),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("open_notebook",
		mcp.WithDescription("Open a notebook: returns its metadata and a summary of the persisted canvas (card and connection counts, last save time)."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
	), s.openNotebook)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List the cards on a notebook's canvas (id, title, position)."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("read_card",
		mcp.WithDescription("Read the full content of a single card."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
		mcp.WithString("card_id", mcp.Required(), mcp.Description("Card id")),
	), s.readCard)

	s.mcp.AddTool(mcp.NewTool("create_card",
		mcp.WithDescription("Create a new card on a notebook's canvas. "+
			"Content MUST follow the card format contract (rich-HTML blob). "+
			"Read the contract first via the get_card_contract tool or the "+
			"bowen://card-format resource."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook the card belongs to")),
		mcp.WithString("title", mcp.Description("Card title (defaults to \"Untitled card\")")),
		mcp.WithString("content", mcp.Description("Rich-HTML card content following the Bowen card format contract")),
		mcp.WithString("color", mcp.Description("Optional accent color (hex, e.g. #f5d0a9)")),
	), s.createCard)

	s.mcp.AddTool(mcp.NewTool("connect_cards",
		mcp.WithDescription("Create a directed connection between two cards in the same notebook."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Source card id")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Target card id")),
	), s.connectCards)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the canonical Bowen card format contract. "+
			"Call this before creating cards to ensure correct structure."),
	), s.getCardContract)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource("bowen://card-format", "Card Format Contract",
			mcp.WithResourceDescription("Canonical card content format that all cards must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folderID := ""
	if f, err := req.RequireString("folder_id"); err == nil {
		folderID = f
	}

	notebooks := s.reg.Notebooks()
	if folderID != "" {
		filtered := notebooks[:0]
		for _, nb := range notebooks {
			if nb.FolderID == folderID {
				filtered = append(filtered, nb)
			}
		}
		notebooks = filtered
	}

	out, _ := json.MarshalIndent(notebooks, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) openNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nb, err := s.reg.GetNotebook(notebookID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("notebook not found: %s", notebookID)), nil
	}

	state, err := s.snaps.Load(notebookID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := struct {
		Notebook    models.Notebook `json:"notebook"`
		Cards       int             `json:"cards"`
		Connections int             `json:"connections"`
		LastSaved   int64           `json:"lastSaved"`
	}{Notebook: nb}
	if state != nil {
		summary.Cards = len(state.Cards)
		summary.Connections = len(state.Connections)
		summary.LastSaved = state.LastSaved
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.reg.GetNotebook(notebookID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("notebook not found: %s", notebookID)), nil
	}

	state, err := s.snaps.Load(notebookID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if state == nil || len(state.Cards) == 0 {
		return mcp.NewToolResultText("no cards"), nil
	}

	var lines []string
	for _, c := range state.Cards {
		lines = append(lines, fmt.Sprintf("%s\t%s\t(%.0f, %.0f)", c.ID, c.Title, c.Position.X, c.Position.Y))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cardID, err := req.RequireString("card_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, err := s.snaps.Load(notebookID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if state != nil {
		for _, c := range state.Cards {
			if c.ID == cardID {
				out, _ := json.MarshalIndent(c, "", "  ")
				return mcp.NewToolResultText(string(out)), nil
			}
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("card not found: %s", cardID)), nil
}

func (s *Server) createCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.reg.GetNotebook(notebookID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("notebook not found: %s", notebookID)), nil
	}

	title := ""
	if v, tErr := req.RequireString("title"); tErr == nil {
		title = v
	}
	if title == "" {
		title = "Untitled card"
	}
	content := ""
	if v, cErr := req.RequireString("content"); cErr == nil {
		content = v
	}
	color := ""
	if v, cErr := req.RequireString("color"); cErr == nil {
		color = v
	}

	state, err := s.snaps.Load(notebookID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var cards []models.Card
	var connections []models.Connection
	if state != nil {
		cards = state.Cards
		connections = state.Connections
	}

	now := time.Now().UnixMilli()
	card := models.Card{
		ID:         ident.New(),
		NotebookID: notebookID,
		Position:   models.Point{X: rand.Float64() * 400, Y: rand.Float64() * 300},
		Size:       models.Size{Width: 300, Height: 180},
		Title:      title,
		Content:    content,
		Color:      color,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	cards = append(cards, card)

	if err := s.snaps.Save(notebookID, cards, connections); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save canvas: %v", err)), nil
	}
	s.reg.SetCardCount(notebookID, len(cards))
	s.indexCanvas(notebookID, cards)

	return mcp.NewToolResultText(fmt.Sprintf("created: %s", card.ID)), nil
}

func (s *Server) connectCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sourceID, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targetID, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if sourceID == targetID {
		return mcp.NewToolResultError("cannot connect a card to itself"), nil
	}

	state, err := s.snaps.Load(notebookID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if state == nil {
		return mcp.NewToolResultError(fmt.Sprintf("notebook has no canvas: %s", notebookID)), nil
	}

	found := 0
	for _, c := range state.Cards {
		if c.ID == sourceID || c.ID == targetID {
			found++
		}
	}
	if found != 2 {
		return mcp.NewToolResultError("source or target card not found"), nil
	}

	for _, conn := range state.Connections {
		if conn.Source == sourceID && conn.Target == targetID {
			return mcp.NewToolResultText(fmt.Sprintf("already connected: %s", conn.ID)), nil
		}
	}

	conn := models.Connection{
		ID:         ident.New(),
		NotebookID: notebookID,
		Source:     sourceID,
		Target:     targetID,
		Type:       "default",
	}
	state.Connections = append(state.Connections, conn)

	if err := s.snaps.Save(notebookID, state.Cards, state.Connections); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save canvas: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("connected: %s", conn.ID)), nil
}

func (s *Server) getCardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "bowen://card-format",
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}

// indexCanvas refreshes the search index rows for a notebook after a direct
// snapshot write. The checksum is left empty so the next reconciliation pass
// re-verifies the snapshot; the rows themselves are current immediately.
func (s *Server) indexCanvas(notebookID string, cards []models.Card) {
	rows := make([]index.CardRow, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, index.CardRow{
			ID:         c.ID,
			NotebookID: c.NotebookID,
			Title:      c.Title,
			Body:       index.Plaintext(c.Content),
			Color:      c.Color,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	_ = s.db.ReplaceNotebook(notebookID, snapshot.Key(notebookID), "", rows)
}
