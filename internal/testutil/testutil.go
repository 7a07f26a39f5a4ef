// Package testutil provides shared test helpers for databases, directories
// and journal fixtures.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "quire-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDir creates a temporary directory with a storage.Provider rooted at it.
func TestDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Journal inserts a journal with the given slug.
func Journal(t *testing.T, db *store.DB, slug string) models.Journal {
	t.Helper()
	j, err := db.CreateJournal(context.Background(), models.Journal{Title: slug, Slug: slug})
	if err != nil {
		t.Fatalf("create journal %q: %v", slug, err)
	}
	return j
}

// Article inserts an article with a single paragraph holding text.
func Article(t *testing.T, db *store.DB, journalID int64, title, text string) models.Article {
	t.Helper()
	a, err := db.CreateArticle(context.Background(), models.Article{
		JournalID:   journalID,
		Title:       title,
		Slug:        title,
		ContentJSON: []byte(`{"blocks":[{"type":"paragraph","data":{"text":` + quote(text) + `}}]}`),
		ContentText: text,
	})
	if err != nil {
		t.Fatalf("create article %q: %v", title, err)
	}
	return a
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
