package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/quire/internal/models"
)

// DefaultLimit caps a search when the caller gives no limit.
const DefaultLimit = 20

// Query describes a search inside one journal.
type Query struct {
	JournalID int64
	Text      string
	Limit     int
}

// Normalize trims the text and applies the default limit.
func (q Query) Normalize() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// Searcher runs the match itself.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]models.SearchHit, error)
}

// Record is what gets indexed for an article.
type Record struct {
	ID        int64  `json:"id"`
	JournalID int64  `json:"journal_id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
}

// RecordOf builds the index record of an article.
func RecordOf(a models.Article) Record {
	return Record{ID: a.ID, JournalID: a.JournalID, Title: a.Title, Text: a.ContentText}
}

// Hit is a search result with highlight spans for display. The HTML fields
// carry the same highlighting as escaped markup with <mark> around matches.
type Hit struct {
	models.SearchHit
	TitleSpans   []Span `json:"title_spans"`
	ExcerptSpans []Span `json:"excerpt_spans"`
	TitleHTML    string `json:"title_html"`
	ExcerptHTML  string `json:"excerpt_html"`
}

// Decorate attaches highlighting for q to hits.
func Decorate(hits []models.SearchHit, q string) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{
			SearchHit:    h,
			TitleSpans:   Highlight(h.Title, q),
			ExcerptSpans: Highlight(h.Excerpt, q),
			TitleHTML:    HighlightHTML(h.Title, q),
			ExcerptHTML:  HighlightHTML(h.Excerpt, q),
		}
	}
	return out
}

// Backend names the searcher that answered a query.
type Backend string

const (
	BackendMeili Backend = "meili"
	BackendStore Backend = "store"
)

// Service tries Meilisearch when it is configured and healthy and falls
// back to the store otherwise.
type Service struct {
	meili    *Meili
	store    Searcher
	observed func(Backend)
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili, store Searcher) *Service {
	return &Service{meili: meili, store: store}
}

// OnSearch registers a callback told which backend answered each query.
func (s *Service) OnSearch(fn func(Backend)) {
	s.observed = fn
}

// Search runs q. Store failures are returned; a Meilisearch failure only
// causes a fallback.
func (s *Service) Search(ctx context.Context, q Query) ([]models.SearchHit, error) {
	q = q.Normalize()
	if q.Text != "" && s.meili != nil && s.meili.Healthy() {
		hits, err := s.meili.Search(ctx, q)
		if err == nil {
			s.observe(BackendMeili)
			return nonNil(hits), nil
		}
		slog.Warn("search: meilisearch failed, falling back to store",
			slog.Int64("journal_id", q.JournalID),
			slog.String("query", q.Text),
			slog.String("error", err.Error()),
		)
	}
	hits, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	s.observe(BackendStore)
	return nonNil(hits), nil
}

// Index pushes an article to Meilisearch in the background.
func (s *Service) Index(a models.Article) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	rec := RecordOf(a)
	go func() {
		if err := s.meili.Index(rec); err != nil {
			slog.Warn("search: index article", slog.Int64("article_id", rec.ID), slog.String("error", err.Error()))
		}
	}()
}

// Remove deletes an article from Meilisearch in the background.
func (s *Service) Remove(articleID int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Delete(articleID); err != nil {
			slog.Warn("search: delete article", slog.Int64("article_id", articleID), slog.String("error", err.Error()))
		}
	}()
}

// Reindex pushes every article to Meilisearch synchronously.
func (s *Service) Reindex(articles []models.Article) {
	if s.meili == nil || !s.meili.Healthy() || len(articles) == 0 {
		return
	}
	recs := make([]Record, len(articles))
	for i, a := range articles {
		recs[i] = RecordOf(a)
	}
	if err := s.meili.IndexAll(recs); err != nil {
		slog.Warn("search: reindex", slog.Int("articles", len(recs)), slog.String("error", err.Error()))
	}
}

func (s *Service) observe(b Backend) {
	if s.observed != nil {
		s.observed(b)
	}
}

func nonNil(h []models.SearchHit) []models.SearchHit {
	if h == nil {
		return []models.SearchHit{}
	}
	return h
}
