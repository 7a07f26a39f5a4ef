package editsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/drafts"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
)

// ContentSurface is the block editor an article is authored in.
type ContentSurface interface {
	// Load replaces the surface content with doc.
	Load(doc blockdoc.Document) error
	// Save returns the current content.
	Save(ctx context.Context) (blockdoc.Document, error)
	// OnChange registers fn to be called on every content edit.
	OnChange(fn func())
	// Dispose releases the surface.
	Dispose()
}

// SurfaceFactory acquires a new surface. It may block.
type SurfaceFactory func(ctx context.Context) (ContentSurface, error)

// Articles is the article collaborator of a session.
type Articles interface {
	GetArticle(ctx context.Context, id int64) (models.Article, error)
	UpdateArticle(ctx context.Context, id int64, p journal.ArticlePatch) (models.Article, error)
}

// Session edits one article at a time. It owns the surface and registers
// its guard with the controller while mounted.
type Session struct {
	articles Articles
	factory  SurfaceFactory
	ctrl     *Controller
	drafts   drafts.Store
	now      func() time.Time

	mu       sync.Mutex
	gen      uint64
	rev      uint64
	surface  ContentSurface
	guard    *Guard
	release  func()
	article  models.Article
	title    string
	slug     string
	restored bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDrafts stashes unsaved edits in store when a save fails and restores
// them on the next mount.
func WithDrafts(store drafts.Store) SessionOption {
	return func(s *Session) { s.drafts = store }
}

// NewSession creates an unmounted session.
func NewSession(articles Articles, factory SurfaceFactory, ctrl *Controller, opts ...SessionOption) *Session {
	s := &Session{articles: articles, factory: factory, ctrl: ctrl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount loads an article into a freshly acquired surface. When Unmount or
// another Mount runs while the article or surface is still being fetched,
// the late result is discarded with apperr.ErrStale and the surface disposed.
func (s *Session) Mount(ctx context.Context, articleID int64) error {
	s.Unmount()
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	a, err := s.articles.GetArticle(ctx, articleID)
	if err != nil {
		return fmt.Errorf("editsession: load article %d: %w", articleID, err)
	}
	surface, err := s.factory(ctx)
	if err != nil {
		return apperr.Transport("acquire surface", err)
	}

	title, slug, content, restored := a.Title, a.Slug, a.ContentJSON, false
	if d, ok := s.pendingDraft(ctx, a); ok {
		title, slug, content, restored = d.Title, d.Slug, d.ContentJSON, true
	}
	doc, err := blockdoc.Parse(content)
	if err != nil {
		surface.Dispose()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		surface.Dispose()
		return apperr.ErrStale
	}
	if err := surface.Load(doc); err != nil {
		surface.Dispose()
		return apperr.Transport("load surface", err)
	}

	guard := NewGuard()
	if restored {
		guard.MarkDirty()
	}
	surface.OnChange(func() {
		s.mu.Lock()
		s.rev++
		s.mu.Unlock()
		guard.MarkDirty()
	})
	s.surface = surface
	s.guard = guard
	s.release = s.ctrl.Register(guard)
	s.article = a
	s.title, s.slug = title, slug
	s.restored = restored
	return nil
}

// pendingDraft returns a stashed draft newer than the stored article.
func (s *Session) pendingDraft(ctx context.Context, a models.Article) (drafts.Draft, bool) {
	if s.drafts == nil {
		return drafts.Draft{}, false
	}
	d, err := s.drafts.Get(ctx, a.ID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			slog.Warn("editsession: read draft", slog.Int64("article_id", a.ID), slog.String("error", err.Error()))
		}
		return drafts.Draft{}, false
	}
	if !d.SavedAt.After(a.UpdatedAt) {
		return drafts.Draft{}, false
	}
	return d, true
}

// Unmount disposes the surface and clears the guard unconditionally. A
// Mount in flight is abandoned.
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.surface != nil {
		s.surface.Dispose()
		s.surface = nil
	}
	if s.release != nil {
		s.release()
		s.release = nil
	}
	s.guard = nil
	s.article = models.Article{}
	s.title, s.slug = "", ""
	s.restored = false
}

// Mounted reports whether a surface is attached.
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface != nil
}

// Article returns the last loaded or saved revision.
func (s *Session) Article() models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.article
}

// Title returns the edited title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Slug returns the edited slug.
func (s *Session) Slug() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slug
}

// Restored reports whether the mount picked up a stashed draft.
func (s *Session) Restored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// State returns the guard state; an unmounted session is clean.
func (s *Session) State() State {
	s.mu.Lock()
	g := s.guard
	s.mu.Unlock()
	if g == nil {
		return Clean
	}
	return g.State()
}

// SetTitle edits the title.
func (s *Session) SetTitle(title string) error {
	return s.edit(func() { s.title = title })
}

// SetSlug edits the slug.
func (s *Session) SetSlug(slug string) error {
	return s.edit(func() { s.slug = slug })
}

func (s *Session) edit(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return apperr.Validation("no article is open")
	}
	fn()
	s.rev++
	s.guard.MarkDirty()
	return nil
}

// Save writes title, slug and surface content. On success the session is
// clean and any stashed draft is removed, unless further edits arrived while
// the write was in flight: those are kept and the session stays dirty. On failure the edits stay in
// memory, the session stays dirty and the edits are stashed as a draft.
func (s *Session) Save(ctx context.Context) (models.Article, error) {
	s.mu.Lock()
	surface, guard := s.surface, s.guard
	id, title, slug, gen, rev := s.article.ID, s.title, s.slug, s.gen, s.rev
	s.mu.Unlock()
	if surface == nil {
		return models.Article{}, apperr.Validation("no article is open")
	}

	doc, err := surface.Save(ctx)
	if err != nil {
		return models.Article{}, apperr.Transport("read surface", err)
	}
	content, err := json.Marshal(doc)
	if err != nil {
		return models.Article{}, fmt.Errorf("editsession: encode content: %w", err)
	}

	a, err := s.articles.UpdateArticle(ctx, id, journal.ArticlePatch{
		Title:   &title,
		Slug:    &slug,
		Content: content,
	})
	if err != nil {
		s.stash(ctx, drafts.Draft{ArticleID: id, Title: title, Slug: slug, ContentJSON: content, SavedAt: s.now()})
		return models.Article{}, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.article = a
		s.restored = false
		if s.rev == rev {
			s.title, s.slug = a.Title, a.Slug
			guard.MarkClean()
		}
	}
	s.mu.Unlock()
	if s.drafts != nil {
		if err := s.drafts.Delete(ctx, id); err != nil {
			slog.Warn("editsession: delete draft", slog.Int64("article_id", id), slog.String("error", err.Error()))
		}
	}
	return a, nil
}

func (s *Session) stash(ctx context.Context, d drafts.Draft) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.Save(ctx, d); err != nil {
		slog.Error("editsession: stash draft", slog.Int64("article_id", d.ArticleID), slog.String("error", err.Error()))
	}
}
