//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on the cards table.
	return nil
}

func ftsInsert(_ *sql.Tx, _ CardRow) error {
	return nil
}

func ftsDeleteNotebook(_ *sql.Tx, _ string) {
}

// Search performs a case-insensitive LIKE search on title and body.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := db.conn.Query(`
		SELECT id, notebook_id, title, body
		FROM cards
		WHERE lower(title) LIKE ? OR lower(body) LIKE ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.CardID, &r.NotebookID, &r.Title, &body); err != nil {
			return nil, err
		}
		r.Snippet = snippetAround(body, query)
		out = append(out, r)
	}
	return out, rows.Err()
}

// snippetAround returns up to 64 runes of context centered on the first
// occurrence of query in body.
func snippetAround(body, query string) string {
	const width = 64
	runes := []rune(body)
	if len(runes) <= width {
		return body
	}
	idx := strings.Index(strings.ToLower(body), strings.ToLower(query))
	if idx < 0 {
		return string(runes[:width]) + "..."
	}
	start := len([]rune(body[:idx])) - width/2
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(runes) {
		end = len(runes)
		start = end - width
	}
	out := string(runes[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out += "..."
	}
	return out
}
