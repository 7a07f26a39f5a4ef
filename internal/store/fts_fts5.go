//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id int64, title, body string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM articles_fts WHERE rowid = ?`, id)
	if _, err := tx.ExecContext(ctx, `INSERT INTO articles_fts (rowid, title, body) VALUES (?, ?, ?)`, id, title, body); err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM articles_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("store: delete fts: %w", err)
	}
	return nil
}

func ftsDeleteJournal(ctx context.Context, tx *sql.Tx, journalID int64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM articles_fts WHERE rowid IN (SELECT id FROM articles WHERE journal_id = ?)`, journalID)
	if err != nil {
		return fmt.Errorf("store: delete journal fts: %w", err)
	}
	return nil
}

// Search runs the trimmed query as an FTS5 prefix phrase over title and
// text. Prefix phrases do not find a query inside a word ("est" in "test"),
// so an empty FTS result falls back to the substring scan. A blank query
// lists the most recently updated articles.
func (db *DB) Search(ctx context.Context, q search.Query) ([]models.SearchHit, error) {
	q = q.Normalize()
	if q.Text == "" {
		return db.recent(ctx, q)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.title, a.content_text
		FROM articles_fts f
		JOIN articles a ON a.id = f.rowid
		WHERE articles_fts MATCH ? AND a.journal_id = ?
		ORDER BY a.updated_at DESC, a.id DESC
		LIMIT ?
	`, phrase(q.Text), q.JournalID, q.Limit)
	if err != nil {
		return nil, classify("search", err)
	}
	hits, err := scanHits(rows, q.Text)
	if err != nil || len(hits) > 0 {
		return hits, err
	}
	return db.substring(ctx, q)
}

func phrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"*`
}
