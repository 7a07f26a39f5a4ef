package store

import (
	"context"
	"fmt"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// CreateJournal inserts j and returns it with its id. A taken slug yields
// apperr.ErrAlreadyExists.
func (db *DB) CreateJournal(ctx context.Context, j models.Journal) (models.Journal, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO journals (title, slug, description) VALUES (?, ?, ?)`,
		j.Title, j.Slug, j.Description)
	if err != nil {
		return models.Journal{}, classify("create journal", err)
	}
	j.ID, err = res.LastInsertId()
	if err != nil {
		return models.Journal{}, fmt.Errorf("store: create journal: %w", err)
	}
	return j, nil
}

// GetJournal loads one journal.
func (db *DB) GetJournal(ctx context.Context, id int64) (models.Journal, error) {
	var j models.Journal
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, slug, description FROM journals WHERE id = ?`, id).
		Scan(&j.ID, &j.Title, &j.Slug, &j.Description)
	if err != nil {
		return models.Journal{}, classify(fmt.Sprintf("get journal %d", id), err)
	}
	return j, nil
}

// ListJournals returns all journals in id order.
func (db *DB) ListJournals(ctx context.Context) ([]models.Journal, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, title, slug, description FROM journals ORDER BY id`)
	if err != nil {
		return nil, classify("list journals", err)
	}
	defer rows.Close()

	out := []models.Journal{}
	for rows.Next() {
		var j models.Journal
		if err := rows.Scan(&j.ID, &j.Title, &j.Slug, &j.Description); err != nil {
			return nil, fmt.Errorf("store: scan journal: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJournal overwrites title, slug and description of j.ID.
func (db *DB) UpdateJournal(ctx context.Context, j models.Journal) (models.Journal, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE journals SET title = ?, slug = ?, description = ? WHERE id = ?`,
		j.Title, j.Slug, j.Description, j.ID)
	if err != nil {
		return models.Journal{}, classify("update journal", err)
	}
	if err := requireRow(res, "update journal", j.ID); err != nil {
		return models.Journal{}, err
	}
	return j, nil
}

// DeleteJournal removes a journal with its articles, links and sequence.
func (db *DB) DeleteJournal(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDeleteJournal(ctx, tx, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM journals WHERE id = ?`, id)
	if err != nil {
		return classify("delete journal", err)
	}
	if err := requireRow(res, "delete journal", id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s %d: %w", op, id, apperr.ErrNotFound)
	}
	return nil
}
