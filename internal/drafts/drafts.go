// Package drafts keeps unsaved article edits so a failed save loses nothing.
package drafts

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTL applies when a store is created with a zero ttl.
const DefaultTTL = 72 * time.Hour

// Draft is an unsaved version of an article.
type Draft struct {
	ArticleID   int64           `json:"article_id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	ContentJSON json.RawMessage `json:"content_json"`
	SavedAt     time.Time       `json:"saved_at"`
}

// Store persists drafts by article id. Get returns apperr.ErrNotFound
// when there is no draft.
type Store interface {
	Save(ctx context.Context, d Draft) error
	Get(ctx context.Context, articleID int64) (Draft, error)
	Delete(ctx context.Context, articleID int64) error
}
