package index

import "fmt"

// CardRow represents a row in the cards table. Body is the plain-text
// extraction of the card's rich-HTML content, used for search only.
type CardRow struct {
	ID         string
	NotebookID string
	Title      string
	Body       string
	Color      string
	UpdatedAt  int64
}

// SearchResult represents one search hit.
type SearchResult struct {
	CardID     string `json:"cardId"`
	NotebookID string `json:"notebookId"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
}

// ReplaceNotebook replaces every indexed card of a notebook with rows and
// records the snapshot checksum, all within one transaction. A snapshot is
// always indexed whole, so a partially applied canvas can never be observed.
func (db *DB) ReplaceNotebook(notebookID, snapshotKey, checksum string, rows []CardRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	ftsDeleteNotebook(tx, notebookID)
	if _, err := tx.Exec(`DELETE FROM cards WHERE notebook_id = ?`, notebookID); err != nil {
		return fmt.Errorf("index: clear notebook: %w", err)
	}

	if len(rows) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO cards (id, notebook_id, title, body, color, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare card insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(r.ID, r.NotebookID, r.Title, r.Body, r.Color, r.UpdatedAt); err != nil {
				return fmt.Errorf("index: insert card: %w", err)
			}
			if err := ftsInsert(tx, r); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO snapshots (key, checksum) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET checksum = excluded.checksum
	`, snapshotKey, checksum); err != nil {
		return fmt.Errorf("index: upsert snapshot: %w", err)
	}

	return tx.Commit()
}

// DeleteNotebook removes a notebook's cards and snapshot bookkeeping.
func (db *DB) DeleteNotebook(notebookID, snapshotKey string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteNotebook(tx, notebookID)
	_, _ = tx.Exec(`DELETE FROM cards WHERE notebook_id = ?`, notebookID)
	_, _ = tx.Exec(`DELETE FROM snapshots WHERE key = ?`, snapshotKey)

	return tx.Commit()
}

// AllChecksums returns the recorded checksum for every indexed snapshot key.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, checksum FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, cs string
		if err := rows.Scan(&k, &cs); err != nil {
			return nil, err
		}
		out[k] = cs
	}
	return out, rows.Err()
}

// CardCount returns the number of indexed cards for a notebook.
func (db *DB) CardCount(notebookID string) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM cards WHERE notebook_id = ?`, notebookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: card count: %w", err)
	}
	return n, nil
}
