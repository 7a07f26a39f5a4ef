package editsession

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/drafts"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
)

func answer(yes bool, asked *[]string) Confirm {
	return func(_ context.Context, prompt string) bool {
		*asked = append(*asked, prompt)
		return yes
	}
}

func TestGuard_Transitions(t *testing.T) {
	g := NewGuard()
	assert.Equal(t, Clean, g.State())
	g.MarkDirty()
	assert.True(t, g.Dirty())
	assert.Equal(t, "dirty", g.State().String())
	g.MarkClean()
	assert.False(t, g.Dirty())
}

func TestGuard_Allow(t *testing.T) {
	var asked []string
	g := NewGuard()
	assert.True(t, g.Allow(context.Background(), answer(false, &asked), "p"), "clean guard never asks")
	assert.Empty(t, asked)

	g.MarkDirty()
	assert.False(t, g.Allow(context.Background(), answer(false, &asked), "p"))
	assert.True(t, g.Allow(context.Background(), answer(true, &asked), "p"))
	assert.Len(t, asked, 2)
	assert.False(t, g.Allow(context.Background(), nil, "p"), "no way to confirm means stay")
}

func TestController_DeclinedNavigationKeepsPathAndState(t *testing.T) {
	var asked []string
	c := NewController("/articles/1/edit", answer(false, &asked))
	g := NewGuard()
	c.Register(g)
	g.MarkDirty()

	assert.False(t, c.Navigate(context.Background(), "/journals/1"))
	assert.Equal(t, "/articles/1/edit", c.Path())
	assert.Equal(t, Dirty, g.State())
	assert.Same(t, g, c.Active())
	assert.Equal(t, []string{LeavePrompt}, asked)
}

func TestController_ConfirmedNavigationClearsGuard(t *testing.T) {
	var asked []string
	c := NewController("/a", answer(true, &asked))
	g := NewGuard()
	c.Register(g)
	g.MarkDirty()

	assert.True(t, c.Navigate(context.Background(), "/b"))
	assert.Equal(t, "/b", c.Path())
	assert.Nil(t, c.Active())

	assert.True(t, c.Navigate(context.Background(), "/c"), "no guard, no question")
	assert.Len(t, asked, 1)
}

func TestController_OneGuardAtATime(t *testing.T) {
	c := NewController("/", nil)
	first, second := NewGuard(), NewGuard()
	releaseFirst := c.Register(first)
	releaseSecond := c.Register(second)
	assert.Same(t, second, c.Active())

	releaseFirst()
	assert.Same(t, second, c.Active(), "stale release must not clear the newer guard")
	releaseSecond()
	assert.Nil(t, c.Active())
}

func TestController_Unload(t *testing.T) {
	var asked []string
	c := NewController("/", answer(false, &asked))
	assert.True(t, c.Unload(context.Background()))

	g := NewGuard()
	c.Register(g)
	assert.True(t, c.Unload(context.Background()))
	g.MarkDirty()
	assert.False(t, c.Unload(context.Background()))
	assert.Equal(t, []string{UnloadPrompt}, asked)
}

type fakeArticles struct {
	mu      sync.Mutex
	byID    map[int64]models.Article
	failErr error
	patches []journal.ArticlePatch
	// during runs while the update is in flight.
	during func()
}

func (f *fakeArticles) GetArticle(_ context.Context, id int64) (models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return models.Article{}, apperr.ErrNotFound
	}
	return a, nil
}

func (f *fakeArticles) UpdateArticle(_ context.Context, id int64, p journal.ArticlePatch) (models.Article, error) {
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, p)
	if f.failErr != nil {
		return models.Article{}, f.failErr
	}
	a := f.byID[id]
	a.Title, a.Slug, a.ContentJSON = *p.Title, *p.Slug, p.Content
	a.UpdatedAt = a.UpdatedAt.Add(time.Minute)
	f.byID[id] = a
	return a, nil
}

type fakeSurface struct {
	mu       sync.Mutex
	doc      blockdoc.Document
	onChange func()
	disposed bool
}

func (s *fakeSurface) Load(doc blockdoc.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	return nil
}

func (s *fakeSurface) Save(context.Context) (blockdoc.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func (s *fakeSurface) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *fakeSurface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

// typeText simulates an edit in the surface.
func (s *fakeSurface) typeText(text string) {
	s.mu.Lock()
	b, _ := blockdoc.NewBlock(blockdoc.KindParagraph, blockdoc.TextData{Text: text})
	s.doc.Blocks = append(s.doc.Blocks, b)
	fn := s.onChange
	s.mu.Unlock()
	fn()
}

func (s *fakeSurface) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

var stored = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*fakeArticles, *fakeSurface, *Controller, *Session, *drafts.MemoryStore) {
	t.Helper()
	arts := &fakeArticles{byID: map[int64]models.Article{
		7: {ID: 7, JournalID: 1, Title: "Harbour", Slug: "harbour",
			ContentJSON: json.RawMessage(`{"blocks":[{"type":"paragraph","data":{"text":"Boats."}}]}`),
			UpdatedAt:   stored},
	}}
	surface := &fakeSurface{}
	ctrl := NewController("/articles/7/edit", nil)
	store := drafts.NewMemoryStore(time.Hour)
	s := NewSession(arts, func(context.Context) (ContentSurface, error) { return surface, nil }, ctrl, WithDrafts(store))
	s.now = func() time.Time { return stored.Add(time.Second) }
	return arts, surface, ctrl, s, store
}

func TestSession_MountLoadsCleanAndRegistersGuard(t *testing.T) {
	_, surface, ctrl, s, _ := newFixture(t)
	require.NoError(t, s.Mount(context.Background(), 7))

	assert.True(t, s.Mounted())
	assert.Equal(t, Clean, s.State())
	assert.Equal(t, "Harbour", s.Title())
	assert.NotNil(t, ctrl.Active())
	require.Len(t, surface.doc.Blocks, 1)
}

func TestSession_MountMissingArticle(t *testing.T) {
	_, _, ctrl, s, _ := newFixture(t)
	err := s.Mount(context.Background(), 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, s.Mounted())
	assert.Nil(t, ctrl.Active())
}

func TestSession_EditsMarkDirtyAndSaveCleans(t *testing.T) {
	arts, surface, _, s, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, s.Mount(ctx, 7))

	surface.typeText("Gulls.")
	assert.Equal(t, Dirty, s.State())
	require.NoError(t, s.SetTitle("Port"))

	a, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, Clean, s.State())
	assert.Equal(t, "Port", a.Title)
	require.Len(t, arts.patches, 1)
	assert.Contains(t, string(arts.patches[0].Content), "Gulls.")

	_, err = store.Get(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSession_EditsDuringSaveStayDirty(t *testing.T) {
	arts, surface, _, s, _ := newFixture(t)
	ctx := context.Background()
	require.NoError(t, s.Mount(ctx, 7))
	require.NoError(t, s.SetTitle("Port"))

	arts.during = func() {
		require.NoError(t, s.SetTitle("Quay"))
	}
	a, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Port", a.Title)
	assert.Equal(t, Dirty, s.State())
	assert.Equal(t, "Quay", s.Title())
	assert.Equal(t, "Port", s.Article().Title)

	arts.during = func() { surface.typeText("Late line.") }
	_, err = s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, Dirty, s.State(), "surface edit during save")
	assert.Equal(t, "Quay", s.Title())

	arts.during = nil
	_, err = s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, Clean, s.State())
}

func TestSession_FailedSaveKeepsEditsAndStashesDraft(t *testing.T) {
	arts, surface, _, s, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, s.Mount(ctx, 7))

	surface.typeText("Unsaved line.")
	require.NoError(t, s.SetSlug("port-slug"))
	arts.failErr = apperr.Transport("update article", errors.New("connection refused"))

	_, err := s.Save(ctx)
	require.ErrorIs(t, err, apperr.ErrTransport)
	assert.Equal(t, Dirty, s.State())
	assert.Equal(t, "port-slug", s.Slug())
	assert.Len(t, surface.doc.Blocks, 2, "in-memory edits survive")

	d, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "port-slug", d.Slug)
	assert.Contains(t, string(d.ContentJSON), "Unsaved line.")

	s.Unmount()
	arts.failErr = nil
	require.NoError(t, s.Mount(ctx, 7))
	assert.True(t, s.Restored())
	assert.Equal(t, Dirty, s.State())
	assert.Equal(t, "port-slug", s.Slug())
	assert.Len(t, surface.doc.Blocks, 2)
}

func TestSession_OlderDraftIsIgnored(t *testing.T) {
	_, _, _, s, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, drafts.Draft{ArticleID: 7, Title: "Old", SavedAt: stored.Add(-time.Hour)}))

	require.NoError(t, s.Mount(ctx, 7))
	assert.False(t, s.Restored())
	assert.Equal(t, "Harbour", s.Title())
	assert.Equal(t, Clean, s.State())
}

func TestSession_UnmountDuringAcquireDiscardsSurface(t *testing.T) {
	arts := &fakeArticles{byID: map[int64]models.Article{7: {ID: 7, Title: "A"}}}
	ctrl := NewController("/", nil)
	surface := &fakeSurface{}
	entered := make(chan struct{})
	proceed := make(chan struct{})
	s := NewSession(arts, func(context.Context) (ContentSurface, error) {
		close(entered)
		<-proceed
		return surface, nil
	}, ctrl)

	errc := make(chan error, 1)
	go func() { errc <- s.Mount(context.Background(), 7) }()
	<-entered
	s.Unmount()
	close(proceed)

	assert.ErrorIs(t, <-errc, apperr.ErrStale)
	assert.True(t, surface.isDisposed())
	assert.False(t, s.Mounted())
	assert.Nil(t, ctrl.Active())
}

func TestSession_UnmountClearsDirtyGuard(t *testing.T) {
	_, surface, ctrl, s, _ := newFixture(t)
	require.NoError(t, s.Mount(context.Background(), 7))
	surface.typeText("x")
	require.Equal(t, Dirty, s.State())

	s.Unmount()
	assert.Nil(t, ctrl.Active())
	assert.Equal(t, Clean, s.State())
	assert.True(t, surface.isDisposed())
	assert.Error(t, s.SetTitle("nope"))
	_, err := s.Save(context.Background())
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFileSurface_DetectsExternalEdits(t *testing.T) {
	fs, err := NewFileSurface(t.TempDir())
	require.NoError(t, err)
	defer fs.Dispose()

	changed := make(chan struct{}, 4)
	fs.OnChange(func() { changed <- struct{}{} })
	require.NoError(t, fs.Load(blockdoc.MustParse(`{"blocks":[{"type":"paragraph","data":{"text":"a"}}]}`)))

	edited := `{"blocks":[{"type":"paragraph","data":{"text":"b"}}]}`
	require.NoError(t, os.WriteFile(fs.Path(), []byte(edited), 0o600))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
	doc, err := fs.Save(context.Background())
	require.NoError(t, err)
	p, err := doc.Blocks[0].Paragraph()
	require.NoError(t, err)
	assert.Equal(t, "b", p.Text)

	fs.Dispose()
	_, err = os.Stat(fs.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestFileSurface_IgnoresPartialWrites(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSurface(dir)
	require.NoError(t, err)
	defer fs.Dispose()

	var mu sync.Mutex
	changes := 0
	fs.OnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return changes
	}

	require.NoError(t, fs.Load(blockdoc.MustParse(`{"blocks":[{"type":"paragraph","data":{"text":"a"}}]}`)))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "load leaves no temporary files")

	require.NoError(t, os.WriteFile(fs.Path(), []byte(`{"blocks":[{"type":"para`), 0o600))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, count(), "own load and truncated content are not edits")

	fs.Sync()
	assert.Equal(t, 1, count(), "an editor that exits on bad content still changed the file")
}
