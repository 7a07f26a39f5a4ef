package store

import (
	"context"
	"fmt"

	"github.com/starford/quire/internal/models"
)

// ReplaceLinks sets the outgoing links of fromID. Links whose target does
// not exist are skipped; duplicates collapse.
func (db *DB) ReplaceLinks(ctx context.Context, fromID int64, links []models.Link) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM article_links WHERE from_article_id = ?`, fromID); err != nil {
		return classify("clear links", err)
	}
	if len(links) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO article_links (from_article_id, to_article_id, anchor)
			SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM articles WHERE id = ?)
		`)
		if err != nil {
			return fmt.Errorf("store: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.ExecContext(ctx, fromID, l.ToArticleID, l.Anchor, l.ToArticleID); err != nil {
				return classify("insert link", err)
			}
		}
	}
	return tx.Commit()
}

// Backlinks returns the links pointing at articleID.
func (db *DB) Backlinks(ctx context.Context, articleID int64) ([]models.Link, error) {
	return db.queryLinks(ctx, "backlinks", `
		SELECT from_article_id, to_article_id, anchor FROM article_links
		WHERE to_article_id = ? ORDER BY from_article_id, anchor`, articleID)
}

// OutgoingLinks returns the links leaving articleID.
func (db *DB) OutgoingLinks(ctx context.Context, articleID int64) ([]models.Link, error) {
	return db.queryLinks(ctx, "outgoing links", `
		SELECT from_article_id, to_article_id, anchor FROM article_links
		WHERE from_article_id = ? ORDER BY to_article_id, anchor`, articleID)
}

func (db *DB) queryLinks(ctx context.Context, op, query string, id int64) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.FromArticleID, &l.ToArticleID, &l.Anchor); err != nil {
			return nil, fmt.Errorf("store: %s: %w", op, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
