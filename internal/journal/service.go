// Package journal coordinates the store, the document engine and search for
// journals and their articles.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/refs"
	"github.com/starford/quire/internal/render"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/sequence"
	"github.com/starford/quire/internal/store"
)

// MaxAnchorRunes bounds the stored anchor text of a link.
const MaxAnchorRunes = 255

// Events receives change notifications.
type Events interface {
	JournalChanged(kind string, journalID int64)
	ArticleChanged(kind string, journalID, articleID int64)
	SequenceChanged(journalID int64, ids []int64)
}

// JournalInput is the payload of CreateJournal.
type JournalInput struct {
	Title       string
	Slug        string
	Description *string
}

// JournalPatch holds the fields of UpdateJournal; nil fields are unchanged.
type JournalPatch struct {
	Title       *string
	Slug        *string
	Description *string
}

// ArticleInput is the payload of CreateArticle. A nil IsIndex or
// IndexEntries is derived from the content.
type ArticleInput struct {
	Title        string
	Slug         string
	Content      json.RawMessage
	IsIndex      *bool
	IndexEntries []models.IndexEntry
}

// ArticlePatch holds the fields of UpdateArticle; nil fields are unchanged.
// A non-empty IfMatch must equal the current Fingerprint of the article.
type ArticlePatch struct {
	Title        *string
	Slug         *string
	Content      json.RawMessage
	IsIndex      *bool
	IndexEntries *[]models.IndexEntry
	IfMatch      string
}

// Rendered is an article together with its rendered blocks.
type Rendered struct {
	Article models.Article `json:"article"`
	Blocks  []render.Block `json:"blocks"`
	HTML    string         `json:"html"`
}

type renderEntry struct {
	blocks []render.Block
	html   string
}

// Service is the journal application service.
type Service struct {
	db       *store.DB
	search   *search.Service
	events   Events
	renderer *render.Renderer
	cache    *cache.Cache
	observe  func(hit bool)
}

// Option configures a Service.
type Option func(*Service)

// WithSearch sets the search service. Without it searches go to the store.
func WithSearch(s *search.Service) Option {
	return func(svc *Service) { svc.search = s }
}

// WithEvents sets the change notification sink.
func WithEvents(e Events) Option {
	return func(svc *Service) { svc.events = e }
}

// WithRenderCacheTTL sets how long rendered articles are cached.
func WithRenderCacheTTL(ttl time.Duration) Option {
	return func(svc *Service) { svc.cache = cache.New(ttl, 2*ttl) }
}

// WithRenderObserver registers a callback told whether each render was a
// cache hit.
func WithRenderObserver(fn func(hit bool)) Option {
	return func(svc *Service) { svc.observe = fn }
}

var _ sequence.Store = (*Service)(nil)

// NewService creates a journal service on db.
func NewService(db *store.DB, opts ...Option) *Service {
	svc := &Service{
		db:       db,
		renderer: render.New(),
		cache:    cache.New(10*time.Minute, 20*time.Minute),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.search == nil {
		svc.search = search.NewService(nil, db)
	}
	return svc
}

func (s *Service) ListJournals(ctx context.Context) ([]models.Journal, error) {
	return s.db.ListJournals(ctx)
}

func (s *Service) GetJournal(ctx context.Context, id int64) (models.Journal, error) {
	return s.db.GetJournal(ctx, id)
}

// CreateJournal stores a journal; the slug defaults to the slugified title.
func (s *Service) CreateJournal(ctx context.Context, in JournalInput) (models.Journal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Journal{}, apperr.Validation("title is required")
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	j, err := s.db.CreateJournal(ctx, models.Journal{Title: title, Slug: slug, Description: in.Description})
	if err != nil {
		return models.Journal{}, err
	}
	s.notifyJournal("created", j.ID)
	return j, nil
}

// UpdateJournal applies p. A new title without a slug re-derives the slug.
func (s *Service) UpdateJournal(ctx context.Context, id int64, p JournalPatch) (models.Journal, error) {
	j, err := s.db.GetJournal(ctx, id)
	if err != nil {
		return models.Journal{}, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return models.Journal{}, apperr.Validation("title must not be empty")
		}
		j.Title = title
	}
	if slug, ok := nextSlug(p.Slug, p.Title != nil, j.Title); ok {
		j.Slug = slug
	}
	if p.Description != nil {
		j.Description = p.Description
	}
	j, err = s.db.UpdateJournal(ctx, j)
	if err != nil {
		return models.Journal{}, err
	}
	s.notifyJournal("updated", j.ID)
	return j, nil
}

// DeleteJournal removes a journal with all of its articles.
func (s *Service) DeleteJournal(ctx context.Context, id int64) error {
	articles, err := s.db.ListArticles(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteJournal(ctx, id); err != nil {
		return err
	}
	for _, a := range articles {
		s.search.Remove(a.ID)
	}
	s.notifyJournal("deleted", id)
	return nil
}

// ListArticles returns the articles of a journal in listing order.
func (s *Service) ListArticles(ctx context.Context, journalID int64) ([]models.Article, error) {
	if _, err := s.db.GetJournal(ctx, journalID); err != nil {
		return nil, err
	}
	return s.db.ListArticles(ctx, journalID)
}

func (s *Service) GetArticle(ctx context.Context, id int64) (models.Article, error) {
	return s.db.GetArticle(ctx, id)
}

// CreateArticle stores a new article of journalID with derived fields and
// synchronized links.
func (s *Service) CreateArticle(ctx context.Context, journalID int64, in ArticleInput) (models.Article, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Article{}, apperr.Validation("title is required")
	}
	if _, err := s.db.GetJournal(ctx, journalID); err != nil {
		return models.Article{}, err
	}
	doc, err := blockdoc.Parse(in.Content)
	if err != nil {
		return models.Article{}, err
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(title)
	}

	a := models.Article{JournalID: journalID, Title: title, Slug: slug}
	var entries *[]models.IndexEntry
	if in.IndexEntries != nil {
		entries = &in.IndexEntries
	}
	if err := applyContent(&a, doc, entries, in.IsIndex); err != nil {
		return models.Article{}, err
	}

	a, err = s.db.CreateArticle(ctx, a)
	if err != nil {
		return models.Article{}, err
	}
	if err := s.syncLinks(ctx, a, doc); err != nil {
		return models.Article{}, err
	}
	s.search.Index(a)
	s.notifyArticle("created", a)
	return a, nil
}

// UpdateArticle applies p to an article, re-deriving content_text,
// index_entries and is_index when the content changes.
func (s *Service) UpdateArticle(ctx context.Context, id int64, p ArticlePatch) (models.Article, error) {
	a, err := s.db.GetArticle(ctx, id)
	if err != nil {
		return models.Article{}, err
	}
	if p.IfMatch != "" && p.IfMatch != Fingerprint(a) {
		return models.Article{}, apperr.ErrConflict
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return models.Article{}, apperr.Validation("title must not be empty")
		}
		a.Title = title
	}
	if slug, ok := nextSlug(p.Slug, p.Title != nil, a.Title); ok {
		a.Slug = slug
	}

	var doc blockdoc.Document
	if p.Content != nil {
		if doc, err = blockdoc.Parse(p.Content); err != nil {
			return models.Article{}, err
		}
		if err := applyContent(&a, doc, p.IndexEntries, p.IsIndex); err != nil {
			return models.Article{}, err
		}
	} else {
		if doc, err = blockdoc.Parse(a.ContentJSON); err != nil {
			return models.Article{}, err
		}
		if p.IndexEntries != nil {
			a.IndexEntries = nonNilEntries(*p.IndexEntries)
		}
		if p.IsIndex != nil {
			a.IsIndex = *p.IsIndex
		}
	}

	a, err = s.db.UpdateArticle(ctx, a)
	if err != nil {
		return models.Article{}, err
	}
	if err := s.syncLinks(ctx, a, doc); err != nil {
		return models.Article{}, err
	}
	s.search.Index(a)
	s.notifyArticle("updated", a)
	return a, nil
}

// DeleteArticle removes an article; its links and sequence slot go with it.
func (s *Service) DeleteArticle(ctx context.Context, id int64) error {
	a, err := s.db.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteArticle(ctx, id); err != nil {
		return err
	}
	s.search.Remove(id)
	s.notifyArticle("deleted", a)
	return nil
}

// Backlinks returns the links pointing at an article.
func (s *Service) Backlinks(ctx context.Context, id int64) ([]models.Link, error) {
	if _, err := s.db.GetArticle(ctx, id); err != nil {
		return nil, err
	}
	return s.db.Backlinks(ctx, id)
}

// Neighbors returns the previous and next article in the persisted sequence.
func (s *Service) Neighbors(ctx context.Context, id int64) (models.Neighbors, error) {
	return s.db.Neighbors(ctx, id)
}

// GetSequence returns the persisted order of a journal.
func (s *Service) GetSequence(ctx context.Context, journalID int64) ([]int64, error) {
	return s.db.GetSequence(ctx, journalID)
}

// SetSequence stores a journal order and returns the canonical list the
// store kept. Ids not belonging to the journal are absent from the result.
func (s *Service) SetSequence(ctx context.Context, journalID int64, ids []int64) ([]int64, error) {
	kept, err := s.db.SetSequence(ctx, journalID, ids)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.SequenceChanged(journalID, kept)
	}
	return kept, nil
}

// Search finds articles of a journal and decorates the hits with highlight
// spans for the query.
func (s *Service) Search(ctx context.Context, q search.Query) ([]search.Hit, error) {
	if _, err := s.db.GetJournal(ctx, q.JournalID); err != nil {
		return nil, err
	}
	q = q.Normalize()
	hits, err := s.search.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return search.Decorate(hits, q.Text), nil
}

// Reindex pushes every stored article to the search backend.
func (s *Service) Reindex(ctx context.Context) error {
	all, err := s.db.AllArticles(ctx)
	if err != nil {
		return err
	}
	s.search.Reindex(all)
	return nil
}

// RenderArticle renders an article against the other articles of its
// journal. Results are cached until the article or one of its siblings
// changes.
func (s *Service) RenderArticle(ctx context.Context, id int64) (Rendered, error) {
	a, err := s.db.GetArticle(ctx, id)
	if err != nil {
		return Rendered{}, err
	}
	siblings, err := s.db.ListArticles(ctx, a.JournalID)
	if err != nil {
		return Rendered{}, err
	}

	key := renderKey(a, siblings)
	if v, ok := s.cache.Get(key); ok {
		e := v.(renderEntry)
		s.observeRender(true)
		return Rendered{Article: a, Blocks: e.blocks, HTML: e.html}, nil
	}

	doc, err := blockdoc.Parse(a.ContentJSON)
	if err != nil {
		return Rendered{}, err
	}
	blocks := s.renderer.Render(doc, refs.Resolve(siblings))
	e := renderEntry{blocks: blocks, html: render.Join(blocks)}
	s.cache.SetDefault(key, e)
	s.observeRender(false)
	return Rendered{Article: a, Blocks: e.blocks, HTML: e.html}, nil
}

// Fingerprint identifies the stored revision of an article.
func Fingerprint(a models.Article) string {
	return checksum.Parts(
		strconv.FormatInt(a.ID, 10),
		a.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(a.ContentJSON),
	)
}

func renderKey(a models.Article, siblings []models.Article) string {
	parts := make([]string, 0, len(siblings)+1)
	parts = append(parts, Fingerprint(a))
	for _, sib := range siblings {
		parts = append(parts, strconv.FormatInt(sib.ID, 10)+"@"+sib.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return checksum.Parts(parts...)
}

func (s *Service) observeRender(hit bool) {
	if s.observe != nil {
		s.observe(hit)
	}
}

// nextSlug decides the slug after an update: an explicit non-blank slug
// wins, otherwise a changed title re-derives it.
func nextSlug(slug *string, titleChanged bool, title string) (string, bool) {
	if slug != nil {
		if v := strings.TrimSpace(*slug); v != "" {
			return v, true
		}
		return Slugify(title), true
	}
	if titleChanged {
		return Slugify(title), true
	}
	return "", false
}

// applyContent stores doc on a and derives content_text, index_entries and
// is_index. Explicit entries and isIndex win over derived values.
func applyContent(a *models.Article, doc blockdoc.Document, entries *[]models.IndexEntry, isIndex *bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return apperr.Validation("content: %v", err)
	}
	a.ContentJSON = raw
	a.ContentText = doc.PlainText()
	if entries != nil {
		a.IndexEntries = nonNilEntries(*entries)
	} else {
		a.IndexEntries = nonNilEntries(doc.IndexEntries())
	}
	if isIndex != nil {
		a.IsIndex = *isIndex
	} else {
		a.IsIndex = len(a.IndexEntries) > 0
	}
	return nil
}

func nonNilEntries(e []models.IndexEntry) []models.IndexEntry {
	if e == nil {
		return []models.IndexEntry{}
	}
	return e
}

// Links derives the outgoing links of an article: inline link markers
// followed by its index entries, deduplicated on (target, anchor). Markers
// without anchor text and entries without a title use the fallback title.
func Links(a models.Article, doc blockdoc.Document) []models.Link {
	type key struct {
		to     int64
		anchor string
	}
	seen := make(map[key]struct{})
	var out []models.Link
	add := func(to int64, anchor string) {
		if to <= 0 {
			return
		}
		anchor = strings.TrimSpace(anchor)
		if anchor == "" {
			anchor = refs.Fallback(to)
		}
		anchor = truncateRunes(anchor, MaxAnchorRunes)
		k := key{to, anchor}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, models.Link{FromArticleID: a.ID, ToArticleID: to, Anchor: anchor})
	}
	for _, m := range doc.LinkMarkers() {
		add(m.TargetID, m.AnchorText)
	}
	for _, e := range a.IndexEntries {
		add(e.ArticleID, e.Title)
	}
	return out
}

func (s *Service) syncLinks(ctx context.Context, a models.Article, doc blockdoc.Document) error {
	links := Links(a, doc)
	if err := s.db.ReplaceLinks(ctx, a.ID, links); err != nil {
		slog.Error("journal: sync links",
			slog.Int64("article_id", a.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func (s *Service) notifyJournal(kind string, id int64) {
	if s.events != nil {
		s.events.JournalChanged(kind, id)
	}
}

func (s *Service) notifyArticle(kind string, a models.Article) {
	if s.events != nil {
		s.events.ArticleChanged(kind, a.JournalID, a.ID)
	}
}
