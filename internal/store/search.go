package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

var _ search.Searcher = (*DB)(nil)

func (db *DB) recent(ctx context.Context, q search.Query) ([]models.SearchHit, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, content_text
		FROM articles
		WHERE journal_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, q.JournalID, q.Limit)
	if err != nil {
		return nil, classify("recent articles", err)
	}
	return scanHits(rows, q.Text)
}

// substring matches q.Text anywhere in title or text, folding case with
// ulower so non-ASCII letters compare the way the highlighter does.
func (db *DB) substring(ctx context.Context, q search.Query) ([]models.SearchHit, error) {
	like := "%" + escapeLike(strings.ToLower(q.Text)) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, content_text
		FROM articles
		WHERE journal_id = ?
		  AND (ulower(title) LIKE ? ESCAPE '\' OR ulower(content_text) LIKE ? ESCAPE '\')
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, q.JournalID, like, like, q.Limit)
	if err != nil {
		return nil, classify("search", err)
	}
	return scanHits(rows, q.Text)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanHits(rows *sql.Rows, query string) ([]models.SearchHit, error) {
	defer rows.Close()
	out := []models.SearchHit{}
	for rows.Next() {
		var (
			h    models.SearchHit
			text string
		)
		if err := rows.Scan(&h.ID, &h.Title, &text); err != nil {
			return nil, fmt.Errorf("store: scan hit: %w", err)
		}
		h.Excerpt = search.Excerpt(text, query, search.ExcerptRunes)
		out = append(out, h)
	}
	return out, rows.Err()
}
