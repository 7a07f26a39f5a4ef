package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

const idxArticles = "quire_articles"

// Meili searches and indexes articles in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects to Meilisearch and configures the article index. An
// unreachable server is not an error; the client reports unhealthy and a
// background loop keeps probing.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		slog.Warn("search: meilisearch unavailable", slog.String("url", url), slog.String("error", err.Error()))
	} else {
		m.healthy.Store(true)
		m.configure()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxArticles, PrimaryKey: "id"}); err != nil {
		slog.Debug("search: create index (may already exist)", slog.String("error", err.Error()))
	}
	index := m.client.Index(idxArticles)
	filterable := []interface{}{"journal_id"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		slog.Warn("search: update filterable attributes", slog.String("error", err.Error()))
	}
	searchable := []string{"title", "text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		slog.Warn("search: update searchable attributes", slog.String("error", err.Error()))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Swap(err == nil)
			if err == nil && !was {
				slog.Info("search: meilisearch recovered")
				m.configure()
			}
		}
	}
}

// Close stops the health loop.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether the last probe succeeded.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the article index restricted to q.JournalID.
func (m *Meili) Search(ctx context.Context, q Query) ([]models.SearchHit, error) {
	if !m.healthy.Load() {
		return nil, apperr.Transport("meilisearch search", fmt.Errorf("unhealthy"))
	}
	q = q.Normalize()
	resp, err := m.client.MultiSearchWithContext(ctx, &meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:             idxArticles,
			Query:                q.Text,
			Limit:                int64(q.Limit),
			Filter:               fmt.Sprintf("journal_id = %d", q.JournalID),
			AttributesToRetrieve: []string{"id", "title", "text"},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, apperr.Transport("meilisearch search", err)
	}
	var hits []models.SearchHit
	for _, r := range resp.Results {
		for _, h := range r.Hits {
			if hit, ok := hitToSearchHit(h, q.Text); ok {
				hits = append(hits, hit)
			}
		}
	}
	return hits, nil
}

func hitToSearchHit(h meili.Hit, query string) (models.SearchHit, bool) {
	var id int64
	raw, ok := h["id"]
	if !ok {
		return models.SearchHit{}, false
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return models.SearchHit{}, false
		}
		if id, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
			return models.SearchHit{}, false
		}
	}
	return models.SearchHit{
		ID:      id,
		Title:   decodeString(h, "title"),
		Excerpt: Excerpt(decodeString(h, "text"), query, ExcerptRunes),
	}, true
}

func decodeString(h meili.Hit, key string) string {
	raw, ok := h[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Index adds or replaces one article.
func (m *Meili) Index(rec Record) error {
	_, err := m.client.Index(idxArticles).AddDocuments([]Record{rec}, nil)
	return err
}

// IndexAll adds or replaces many articles.
func (m *Meili) IndexAll(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxArticles).AddDocuments(recs, nil)
	return err
}

// Delete removes one article.
func (m *Meili) Delete(articleID int64) error {
	_, err := m.client.Index(idxArticles).DeleteDocument(strconv.FormatInt(articleID, 10), nil)
	return err
}
