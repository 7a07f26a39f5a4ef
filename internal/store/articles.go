package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/quire/internal/models"
)

const articleColumns = `id, journal_id, title, slug, content_json, content_text, is_index, index_entries, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (models.Article, error) {
	var (
		a       models.Article
		content string
		entries string
		updated string
	)
	if err := s.Scan(&a.ID, &a.JournalID, &a.Title, &a.Slug, &content, &a.ContentText, &a.IsIndex, &entries, &updated); err != nil {
		return models.Article{}, err
	}
	a.ContentJSON = json.RawMessage(content)
	if err := json.Unmarshal([]byte(entries), &a.IndexEntries); err != nil {
		return models.Article{}, fmt.Errorf("decode index entries of article %d: %w", a.ID, err)
	}
	if a.IndexEntries == nil {
		a.IndexEntries = []models.IndexEntry{}
	}
	a.UpdatedAt = parseStamp(updated)
	return a, nil
}

func encodeArticle(a models.Article) (content, entries string, err error) {
	content = string(a.ContentJSON)
	if len(a.ContentJSON) == 0 {
		content = `{"blocks":[]}`
	}
	list := a.IndexEntries
	if list == nil {
		list = []models.IndexEntry{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("store: encode index entries: %w", err)
	}
	return content, string(raw), nil
}

// CreateArticle inserts a and returns the stored row. A slug already used
// in the same journal yields apperr.ErrAlreadyExists; an unknown journal
// yields apperr.ErrConflict.
func (db *DB) CreateArticle(ctx context.Context, a models.Article) (models.Article, error) {
	content, entries, err := encodeArticle(a)
	if err != nil {
		return models.Article{}, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Article{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO articles (journal_id, title, slug, content_json, content_text, is_index, index_entries, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.JournalID, a.Title, a.Slug, content, a.ContentText, a.IsIndex, entries, db.stamp())
	if err != nil {
		return models.Article{}, classify("create article", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Article{}, fmt.Errorf("store: create article: %w", err)
	}
	if err := ftsUpsert(ctx, tx, id, a.Title, a.ContentText); err != nil {
		return models.Article{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Article{}, fmt.Errorf("store: commit: %w", err)
	}
	return db.GetArticle(ctx, id)
}

// GetArticle loads one article.
func (db *DB) GetArticle(ctx context.Context, id int64) (models.Article, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if err != nil {
		return models.Article{}, classify(fmt.Sprintf("get article %d", id), err)
	}
	return a, nil
}

// ListArticles returns the articles of a journal in listing (id) order.
func (db *DB) ListArticles(ctx context.Context, journalID int64) ([]models.Article, error) {
	return db.queryArticles(ctx, "list articles",
		`SELECT `+articleColumns+` FROM articles WHERE journal_id = ? ORDER BY id`, journalID)
}

// AllArticles returns every article; used to rebuild the search index.
func (db *DB) AllArticles(ctx context.Context) ([]models.Article, error) {
	return db.queryArticles(ctx, "all articles", `SELECT `+articleColumns+` FROM articles ORDER BY id`)
}

func (db *DB) queryArticles(ctx context.Context, op, query string, args ...any) ([]models.Article, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := []models.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("store: %s: %w", op, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateArticle overwrites the mutable fields of a.ID and refreshes updated_at.
func (db *DB) UpdateArticle(ctx context.Context, a models.Article) (models.Article, error) {
	content, entries, err := encodeArticle(a)
	if err != nil {
		return models.Article{}, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Article{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE articles SET
			title         = ?,
			slug          = ?,
			content_json  = ?,
			content_text  = ?,
			is_index      = ?,
			index_entries = ?,
			updated_at    = ?
		WHERE id = ?
	`, a.Title, a.Slug, content, a.ContentText, a.IsIndex, entries, db.stamp(), a.ID)
	if err != nil {
		return models.Article{}, classify("update article", err)
	}
	if err := requireRow(res, "update article", a.ID); err != nil {
		return models.Article{}, err
	}
	if err := ftsUpsert(ctx, tx, a.ID, a.Title, a.ContentText); err != nil {
		return models.Article{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Article{}, fmt.Errorf("store: commit: %w", err)
	}
	return db.GetArticle(ctx, a.ID)
}

// DeleteArticle removes an article; its links and sequence slot go with it.
func (db *DB) DeleteArticle(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(ctx, tx, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return classify("delete article", err)
	}
	if err := requireRow(res, "delete article", id); err != nil {
		return err
	}
	return tx.Commit()
}
