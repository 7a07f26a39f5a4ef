// Package models defines the domain types for Quire.
package models

import (
	"encoding/json"
	"time"
)

// Journal is a named collection of articles.
type Journal struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// Article is a page of a journal. ContentJSON is the raw block document as
// exchanged with the authoring surface; ContentText is its flattened text.
type Article struct {
	ID           int64           `json:"id"`
	JournalID    int64           `json:"journal_id"`
	Title        string          `json:"title"`
	Slug         string          `json:"slug"`
	ContentJSON  json.RawMessage `json:"content_json"`
	ContentText  string          `json:"content_text"`
	IsIndex      bool            `json:"is_index"`
	IndexEntries []IndexEntry    `json:"index_entries"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IndexEntry is one reference stored for an index article.
type IndexEntry struct {
	ArticleID int64  `json:"article_id"`
	Title     string `json:"title,omitempty"`
}

// Link is a directed reference from one article to another.
type Link struct {
	FromArticleID int64  `json:"from_article_id"`
	ToArticleID   int64  `json:"to_article_id"`
	Anchor        string `json:"anchor"`
}

// Neighbors are the previous and next articles in a journal's persisted sequence.
type Neighbors struct {
	PrevArticleID *int64 `json:"prev_article_id"`
	NextArticleID *int64 `json:"next_article_id"`
}

// SearchHit is a single search result.
type SearchHit struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// IDs returns the ids of articles in order.
func IDs(articles []Article) []int64 {
	out := make([]int64, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return out
}
