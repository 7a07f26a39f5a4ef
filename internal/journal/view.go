package journal

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/refs"
	"github.com/starford/quire/internal/render"
	"github.com/starford/quire/internal/sequence"
)

// JournalView is a journal with its articles in reading order.
type JournalView struct {
	Journal  models.Journal   `json:"journal"`
	Order    []models.Article `json:"order"`
	Sequence []int64          `json:"sequence"`
	Refs     refs.Map         `json:"-"`
}

// ArticleView is everything a reader of one article needs.
type ArticleView struct {
	Article   models.Article   `json:"article"`
	Blocks    []render.Block   `json:"blocks"`
	HTML      string           `json:"html"`
	Neighbors models.Neighbors `json:"neighbors"`
	Backlinks []models.Link    `json:"backlinks"`
}

// Ticket identifies one load of a Loader.
type Ticket uint64

// Loader runs the batch loads of one view. Starting a load or calling
// Abandon invalidates every earlier load; their results are discarded with
// apperr.ErrStale.
type Loader struct {
	svc *Service
	gen atomic.Uint64

	// joined runs after the fetches of a load complete; tests use it.
	joined func()
}

// NewLoader creates a loader on svc.
func NewLoader(svc *Service) *Loader {
	return &Loader{svc: svc}
}

// Begin starts a new load.
func (l *Loader) Begin() Ticket {
	return Ticket(l.gen.Add(1))
}

// Abandon invalidates the load in flight, if any.
func (l *Loader) Abandon() {
	l.gen.Add(1)
}

// Current reports whether t is the latest load.
func (l *Loader) Current(t Ticket) bool {
	return uint64(t) == l.gen.Load()
}

// LoadJournal fetches the journal, its articles and its persisted sequence
// concurrently and materializes the reading order. Any failed fetch fails
// the whole load.
func (l *Loader) LoadJournal(ctx context.Context, journalID int64) (JournalView, error) {
	t := l.Begin()

	var (
		j         models.Journal
		articles  []models.Article
		persisted []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		j, err = l.svc.db.GetJournal(gctx, journalID)
		return err
	})
	g.Go(func() error {
		var err error
		articles, err = l.svc.db.ListArticles(gctx, journalID)
		return err
	})
	g.Go(func() error {
		var err error
		persisted, err = l.svc.db.GetSequence(gctx, journalID)
		return err
	})
	if err := g.Wait(); err != nil {
		return JournalView{}, err
	}
	l.afterJoin()
	if !l.Current(t) {
		return JournalView{}, apperr.ErrStale
	}
	return JournalView{
		Journal:  j,
		Order:    sequence.Materialize(persisted, articles),
		Sequence: persisted,
		Refs:     refs.Resolve(articles),
	}, nil
}

// LoadArticle renders an article and fetches its neighbors and backlinks
// concurrently.
func (l *Loader) LoadArticle(ctx context.Context, articleID int64) (ArticleView, error) {
	t := l.Begin()

	var (
		rendered  Rendered
		neighbors models.Neighbors
		backlinks []models.Link
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rendered, err = l.svc.RenderArticle(gctx, articleID)
		return err
	})
	g.Go(func() error {
		var err error
		neighbors, err = l.svc.db.Neighbors(gctx, articleID)
		return err
	})
	g.Go(func() error {
		var err error
		backlinks, err = l.svc.db.Backlinks(gctx, articleID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ArticleView{}, err
	}
	l.afterJoin()
	if !l.Current(t) {
		return ArticleView{}, apperr.ErrStale
	}
	return ArticleView{
		Article:   rendered.Article,
		Blocks:    rendered.Blocks,
		HTML:      rendered.HTML,
		Neighbors: neighbors,
		Backlinks: backlinks,
	}, nil
}

func (l *Loader) afterJoin() {
	if l.joined != nil {
		l.joined()
	}
}
