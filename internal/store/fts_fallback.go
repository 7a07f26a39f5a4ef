//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over articles.title and articles.content_text.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ int64, _, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ int64) error { return nil }

func ftsDeleteJournal(_ context.Context, _ *sql.Tx, _ int64) error { return nil }

// Search matches the trimmed query as a case-insensitive substring of title
// or text. A blank query lists the most recently updated articles.
func (db *DB) Search(ctx context.Context, q search.Query) ([]models.SearchHit, error) {
	q = q.Normalize()
	if q.Text == "" {
		return db.recent(ctx, q)
	}
	return db.substring(ctx, q)
}
