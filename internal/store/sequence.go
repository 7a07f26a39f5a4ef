package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/sequence"
)

// GetSequence returns the persisted order of a journal.
func (db *DB) GetSequence(ctx context.Context, journalID int64) ([]int64, error) {
	if _, err := db.GetJournal(ctx, journalID); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT article_id FROM article_sequence WHERE journal_id = ? ORDER BY position`, journalID)
	if err != nil {
		return nil, classify("get sequence", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan sequence: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetSequence replaces the order of a journal and returns what was stored.
// A repeated id is a validation failure; ids that are not articles of the
// journal are dropped.
func (db *DB) SetSequence(ctx context.Context, journalID int64, ids []int64) ([]int64, error) {
	if err := sequence.ValidateOrder(ids); err != nil {
		return nil, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM journals WHERE id = ?`, journalID).Scan(&exists); err != nil {
		return nil, classify(fmt.Sprintf("set sequence of journal %d", journalID), err)
	}

	members, err := journalMembers(ctx, tx, journalID)
	if err != nil {
		return nil, err
	}
	kept := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := members[id]; ok {
			kept = append(kept, id)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM article_sequence WHERE journal_id = ?`, journalID); err != nil {
		return nil, classify("clear sequence", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO article_sequence (journal_id, article_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("store: prepare sequence insert: %w", err)
	}
	defer stmt.Close()
	for pos, id := range kept {
		if _, err := stmt.ExecContext(ctx, journalID, id, pos); err != nil {
			return nil, classify("insert sequence", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return kept, nil
}

func journalMembers(ctx context.Context, tx *sql.Tx, journalID int64) (map[int64]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM articles WHERE journal_id = ?`, journalID)
	if err != nil {
		return nil, classify("journal members", err)
	}
	defer rows.Close()
	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan member: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// Neighbors returns the articles before and after articleID in its
// journal's persisted sequence. Both are nil when the article is unsequenced.
func (db *DB) Neighbors(ctx context.Context, articleID int64) (models.Neighbors, error) {
	var journalID int64
	if err := db.conn.QueryRowContext(ctx, `SELECT journal_id FROM articles WHERE id = ?`, articleID).Scan(&journalID); err != nil {
		return models.Neighbors{}, classify(fmt.Sprintf("neighbors of article %d", articleID), err)
	}
	var pos int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT position FROM article_sequence WHERE journal_id = ? AND article_id = ?`, journalID, articleID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Neighbors{}, nil
	}
	if err != nil {
		return models.Neighbors{}, classify("neighbor position", err)
	}

	var n models.Neighbors
	if n.PrevArticleID, err = db.neighbor(ctx,
		`SELECT article_id FROM article_sequence WHERE journal_id = ? AND position < ? ORDER BY position DESC LIMIT 1`,
		journalID, pos); err != nil {
		return models.Neighbors{}, err
	}
	if n.NextArticleID, err = db.neighbor(ctx,
		`SELECT article_id FROM article_sequence WHERE journal_id = ? AND position > ? ORDER BY position ASC LIMIT 1`,
		journalID, pos); err != nil {
		return models.Neighbors{}, err
	}
	return n, nil
}

func (db *DB) neighbor(ctx context.Context, query string, journalID, pos int64) (*int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, query, journalID, pos).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("neighbor", err)
	}
	return &id, nil
}
