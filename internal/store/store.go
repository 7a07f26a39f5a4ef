// Package store persists journals, articles, links and reading sequences in SQLite,
// with optional FTS5 full-text search.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/quire/internal/apperr"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS journals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL,
	slug        TEXT NOT NULL UNIQUE,
	description TEXT
);

CREATE TABLE IF NOT EXISTS articles (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	journal_id    INTEGER NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	slug          TEXT NOT NULL,
	content_json  TEXT NOT NULL DEFAULT '{"blocks":[]}',
	content_text  TEXT NOT NULL DEFAULT '',
	is_index      INTEGER NOT NULL DEFAULT 0,
	index_entries TEXT NOT NULL DEFAULT '[]',
	updated_at    TEXT NOT NULL,
	UNIQUE(journal_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_articles_journal ON articles(journal_id);

CREATE TABLE IF NOT EXISTS article_links (
	from_article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	to_article_id   INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	anchor          TEXT NOT NULL DEFAULT '',
	UNIQUE(from_article_id, to_article_id, anchor)
);

CREATE INDEX IF NOT EXISTS idx_links_from ON article_links(from_article_id);
CREATE INDEX IF NOT EXISTS idx_links_to ON article_links(to_article_id);

CREATE TABLE IF NOT EXISTS article_sequence (
	journal_id INTEGER NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
	article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	UNIQUE(journal_id, article_id),
	UNIQUE(journal_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sequence_article ON article_sequence(article_id);
`

// timeLayout is fixed width so that updated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps a sql.DB with the persistence operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// driverName is go-sqlite3 with ulower registered on every connection.
// The built-in lower() folds ASCII only.
const driverName = "sqlite3_quire"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open(driverName, path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection; used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) stamp() string {
	return db.now().UTC().Format(timeLayout)
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// classify maps driver errors onto apperr classes.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		if se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("store: %s: %w", op, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: %s: %w: %v", op, apperr.ErrConflict, err)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
