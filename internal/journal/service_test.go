package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) JournalChanged(kind string, journalID int64) {
	r.add(fmt.Sprintf("journal.%s:%d", kind, journalID))
}

func (r *recorder) ArticleChanged(kind string, journalID, articleID int64) {
	r.add(fmt.Sprintf("article.%s:%d/%d", kind, journalID, articleID))
}

func (r *recorder) SequenceChanged(journalID int64, ids []int64) {
	r.add(fmt.Sprintf("sequence.updated:%d%v", journalID, ids))
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewService(testutil.TestDB(t), opts...)
}

func mustJournal(t *testing.T, s *Service, title string) models.Journal {
	t.Helper()
	j, err := s.CreateJournal(context.Background(), JournalInput{Title: title})
	if err != nil {
		t.Fatalf("CreateJournal: %v", err)
	}
	return j
}

func mustCreate(t *testing.T, s *Service, journalID int64, title, content string) models.Article {
	t.Helper()
	a, err := s.CreateArticle(context.Background(), journalID, ArticleInput{Title: title, Content: json.RawMessage(content)})
	if err != nil {
		t.Fatalf("CreateArticle %q: %v", title, err)
	}
	return a
}

func paragraph(text string) string {
	raw, _ := json.Marshal(text)
	return `{"blocks":[{"type":"paragraph","data":{"text":` + string(raw) + `}}]}`
}

func ptr[T any](v T) *T { return &v }

func TestCreateJournal_SlugDefaultsAndConflicts(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	j := mustJournal(t, s, "Field Notes 2026")
	if j.Slug != "field-notes-2026" {
		t.Errorf("slug = %q", j.Slug)
	}
	if _, err := s.CreateJournal(ctx, JournalInput{Title: "Other", Slug: "field-notes-2026"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate slug err = %v, want ErrAlreadyExists", err)
	}
	if _, err := s.CreateJournal(ctx, JournalInput{Title: "   "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank title err = %v, want ErrValidation", err)
	}
}

func TestUpdateJournal(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	j := mustJournal(t, s, "Drafts")

	got, err := s.UpdateJournal(ctx, j.ID, JournalPatch{Title: ptr("Final Cut")})
	if err != nil {
		t.Fatalf("UpdateJournal: %v", err)
	}
	if got.Title != "Final Cut" || got.Slug != "final-cut" {
		t.Errorf("title change should re-derive slug: %+v", got)
	}

	got, err = s.UpdateJournal(ctx, j.ID, JournalPatch{Slug: ptr("custom"), Description: ptr("about")})
	if err != nil {
		t.Fatalf("UpdateJournal: %v", err)
	}
	if got.Slug != "custom" || got.Title != "Final Cut" || got.Description == nil || *got.Description != "about" {
		t.Errorf("unexpected journal: %+v", got)
	}

	if _, err := s.UpdateJournal(ctx, 999, JournalPatch{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown journal err = %v", err)
	}
}

func TestCreateArticle_DerivedFieldsAndLinks(t *testing.T) {
	rec := &recorder{}
	s := newService(t, WithEvents(rec))
	ctx := context.Background()
	j := mustJournal(t, s, "Atlas")

	target := mustCreate(t, s, j.ID, "The Map", paragraph("North is up.\nSouth is down."))
	content := fmt.Sprintf(`{"blocks":[
		{"type":"paragraph","data":{"text":"See <a data-article-id=\"%d\">the map</a> first."}},
		{"type":"index-list","data":{"entries":[{"article_id":%d,"title":"Map"},{"article_id":"x"}]}}
	]}`, target.ID, target.ID)
	idx := mustCreate(t, s, j.ID, "Contents", content)

	if idx.Slug != "contents" {
		t.Errorf("slug = %q", idx.Slug)
	}
	if idx.ContentText != "See the map first." {
		t.Errorf("content_text = %q", idx.ContentText)
	}
	if !idx.IsIndex {
		t.Error("article with index entries should be an index")
	}
	if len(idx.IndexEntries) != 1 || idx.IndexEntries[0] != (models.IndexEntry{ArticleID: target.ID, Title: "Map"}) {
		t.Errorf("index_entries = %+v", idx.IndexEntries)
	}
	if target.IsIndex || len(target.IndexEntries) != 0 {
		t.Errorf("plain article should not be an index: %+v", target)
	}

	back, err := s.Backlinks(ctx, target.ID)
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(back) != 2 {
		t.Fatalf("backlinks = %+v, want 2", back)
	}
	anchors := []string{back[0].Anchor, back[1].Anchor}
	if anchors[0] != "Map" || anchors[1] != "the map" {
		t.Errorf("anchors = %v", anchors)
	}

	events := rec.list()
	want := fmt.Sprintf("article.created:%d/%d", j.ID, idx.ID)
	if len(events) == 0 || events[len(events)-1] != want {
		t.Errorf("events = %v, want last %q", events, want)
	}
}

func TestCreateArticle_ExplicitOverrides(t *testing.T) {
	s := newService(t)
	j := mustJournal(t, s, "J")
	target := mustCreate(t, s, j.ID, "T", paragraph("t"))

	a, err := s.CreateArticle(context.Background(), j.ID, ArticleInput{
		Title:   "Manual",
		Slug:    "manual-slug",
		Content: json.RawMessage(paragraph("plain")),
		IsIndex: ptr(false),
		IndexEntries: []models.IndexEntry{
			{ArticleID: target.ID, Title: "Hand picked"},
		},
	})
	if err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}
	if a.IsIndex {
		t.Error("explicit is_index=false must win")
	}
	if a.Slug != "manual-slug" || len(a.IndexEntries) != 1 {
		t.Errorf("unexpected article: %+v", a)
	}
}

func TestCreateArticle_Errors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	j := mustJournal(t, s, "J")

	if _, err := s.CreateArticle(ctx, 404, ArticleInput{Title: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown journal err = %v", err)
	}
	if _, err := s.CreateArticle(ctx, j.ID, ArticleInput{Title: "x", Content: json.RawMessage(`{"blocks":`)}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("malformed content err = %v", err)
	}
	mustCreate(t, s, j.ID, "Same", "")
	if _, err := s.CreateArticle(ctx, j.ID, ArticleInput{Title: "Same"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate slug err = %v", err)
	}
	other := mustJournal(t, s, "Other")
	if _, err := s.CreateArticle(ctx, other.ID, ArticleInput{Title: "Same"}); err != nil {
		t.Errorf("slug should be unique per journal only: %v", err)
	}
}

func TestCreateArticle_UnknownBlocksRoundTrip(t *testing.T) {
	s := newService(t)
	j := mustJournal(t, s, "J")
	content := `{"time":5,"version":"2.28","blocks":[{"id":"c1","type":"chart","data":{"series":[1,2]},"tunes":{"x":true}}]}`
	a := mustCreate(t, s, j.ID, "Chart", content)

	doc, err := blockdoc.Parse(a.ContentJSON)
	if err != nil {
		t.Fatalf("Parse stored content: %v", err)
	}
	var got, want any
	b, _ := json.Marshal(doc)
	_ = json.Unmarshal(b, &got)
	_ = json.Unmarshal([]byte(content), &want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stored content changed:\n got %s\nwant %s", b, content)
	}
}

func TestUpdateArticle(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	j := mustJournal(t, s, "J")
	target := mustCreate(t, s, j.ID, "Target", paragraph("t"))
	a := mustCreate(t, s, j.ID, "Draft Title", paragraph("old body"))

	got, err := s.UpdateArticle(ctx, a.ID, ArticlePatch{Title: ptr("Better Title")})
	if err != nil {
		t.Fatalf("UpdateArticle: %v", err)
	}
	if got.Slug != "better-title" || got.ContentText != "old body" {
		t.Errorf("title-only patch: %+v", got)
	}

	content := fmt.Sprintf(`{"blocks":[{"type":"index-list","data":{"entries":[{"article_id":%d,"title":"T"}]}}]}`, target.ID)
	got, err = s.UpdateArticle(ctx, a.ID, ArticlePatch{Content: json.RawMessage(content)})
	if err != nil {
		t.Fatalf("UpdateArticle content: %v", err)
	}
	if !got.IsIndex || len(got.IndexEntries) != 1 || got.ContentText != "" {
		t.Errorf("content patch should re-derive: %+v", got)
	}
	back, _ := s.Backlinks(ctx, target.ID)
	if len(back) != 1 || back[0].Anchor != "T" {
		t.Errorf("backlinks = %+v", back)
	}

	got, err = s.UpdateArticle(ctx, a.ID, ArticlePatch{IsIndex: ptr(false), IndexEntries: &[]models.IndexEntry{}})
	if err != nil {
		t.Fatalf("UpdateArticle flags: %v", err)
	}
	if got.IsIndex || len(got.IndexEntries) != 0 {
		t.Errorf("explicit flags not applied: %+v", got)
	}
	if back, _ := s.Backlinks(ctx, target.ID); len(back) != 0 {
		t.Errorf("links should follow cleared entries: %+v", back)
	}
}

func TestUpdateArticle_IfMatch(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	j := mustJournal(t, s, "J")
	a := mustCreate(t, s, j.ID, "A", paragraph("a"))

	if _, err := s.UpdateArticle(ctx, a.ID, ArticlePatch{Title: ptr("B"), IfMatch: "stale"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale IfMatch err = %v, want ErrConflict", err)
	}
	if _, err := s.UpdateArticle(ctx, a.ID, ArticlePatch{Title: ptr("B"), IfMatch: Fingerprint(a)}); err != nil {
		t.Errorf("matching IfMatch: %v", err)
	}
}

func TestDeleteArticle_RemovesLinksAndSequence(t *testing.T) {
	rec := &recorder{}
	s := newService(t, WithEvents(rec))
	ctx := context.Background()
	j := mustJournal(t, s, "J")
	a := mustCreate(t, s, j.ID, "A", paragraph("a"))
	b := mustCreate(t, s, j.ID, "B", fmt.Sprintf(`{"blocks":[{"type":"paragraph","data":{"text":"<a data-article-id=\"%d\">A</a>"}}]}`, a.ID))

	if _, err := s.SetSequence(ctx, j.ID, []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("SetSequence: %v", err)
	}
	if err := s.DeleteArticle(ctx, b.ID); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	if back, _ := s.Backlinks(ctx, a.ID); len(back) != 0 {
		t.Errorf("backlinks survive delete: %+v", back)
	}
	seq, _ := s.GetSequence(ctx, j.ID)
	if len(seq) != 1 || seq[0] != a.ID {
		t.Errorf("sequence = %v", seq)
	}
	if err := s.DeleteArticle(ctx, b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestSetSequence_DropsForeignIDs(t *testing.T) {
	rec := &recorder{}
	s := newService(t, WithEvents(rec))
	ctx := context.Background()
	j := mustJournal(t, s, "J")
	other := mustJournal(t, s, "Other")
	a := mustCreate(t, s, j.ID, "A", "")
	b := mustCreate(t, s, j.ID, "B", "")
	x := mustCreate(t, s, other.ID, "X", "")

	kept, err := s.SetSequence(ctx, j.ID, []int64{b.ID, x.ID, a.ID})
	if err != nil {
		t.Fatalf("SetSequence: %v", err)
	}
	if fmt.Sprint(kept) != fmt.Sprint([]int64{b.ID, a.ID}) {
		t.Errorf("kept = %v", kept)
	}
	if _, err := s.SetSequence(ctx, j.ID, []int64{a.ID, a.ID}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("duplicate ids err = %v", err)
	}

	n, err := s.Neighbors(ctx, a.ID)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if n.PrevArticleID == nil || *n.PrevArticleID != b.ID || n.NextArticleID != nil {
		t.Errorf("neighbors = %+v", n)
	}

	events := rec.list()
	want := fmt.Sprintf("sequence.updated:%d%v", j.ID, kept)
	found := false
	for _, e := range events {
		found = found || e == want
	}
	if !found {
		t.Errorf("events = %v, want %q", events, want)
	}
}

func TestSearch_DecoratesHits(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	j := mustJournal(t, s, "J")
	mustCreate(t, s, j.ID, "The Map Room", paragraph("Charts and maps."))
	mustCreate(t, s, j.ID, "Kitchen", paragraph("Bread."))

	hits, err := s.Search(ctx, search.Query{JournalID: j.ID, Text: "  MAP "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "The Map Room" {
		t.Fatalf("hits = %+v", hits)
	}
	var matched []string
	for _, sp := range hits[0].TitleSpans {
		if sp.Match {
			matched = append(matched, sp.Text)
		}
	}
	if len(matched) != 1 || matched[0] != "Map" {
		t.Errorf("title spans = %+v", hits[0].TitleSpans)
	}

	if _, err := s.Search(ctx, search.Query{JournalID: 404, Text: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown journal err = %v", err)
	}

	all, err := s.Search(ctx, search.Query{JournalID: j.ID})
	if err != nil {
		t.Fatalf("blank Search: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("blank query should list recent articles, got %d", len(all))
	}
}

func TestRenderArticle_CachesUntilSiblingsChange(t *testing.T) {
	var hits, misses int
	s := newService(t, WithRenderObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	ctx := context.Background()
	j := mustJournal(t, s, "J")
	target := mustCreate(t, s, j.ID, "Harbour", paragraph("Boats.\nGulls.\nNets."))
	a := mustCreate(t, s, j.ID, "Walk", fmt.Sprintf(`{"blocks":[{"type":"paragraph","data":{"text":"To the <a data-article-id=\"%d\">harbour</a>."}}]}`, target.ID))

	r, err := s.RenderArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("RenderArticle: %v", err)
	}
	if !strings.Contains(r.HTML, fmt.Sprintf(`href="/articles/%d"`, target.ID)) {
		t.Errorf("missing article link: %s", r.HTML)
	}
	if !strings.Contains(r.HTML, "title=\"Harbour\nBoats. Gulls.\"") {
		t.Errorf("missing tooltip: %s", r.HTML)
	}

	if _, err := s.RenderArticle(ctx, a.ID); err != nil {
		t.Fatalf("RenderArticle: %v", err)
	}
	if hits != 1 || misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", hits, misses)
	}

	if _, err := s.UpdateArticle(ctx, target.ID, ArticlePatch{Title: ptr("Port")}); err != nil {
		t.Fatalf("UpdateArticle: %v", err)
	}
	r, err = s.RenderArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("RenderArticle: %v", err)
	}
	if misses != 2 {
		t.Errorf("sibling change should miss the cache, misses=%d", misses)
	}
	if !strings.Contains(r.HTML, `title="Port`) {
		t.Errorf("stale title in render: %s", r.HTML)
	}
}

func TestLinks_DedupAndFallbackAnchor(t *testing.T) {
	doc := blockdoc.MustParse(`{"blocks":[
		{"type":"paragraph","data":{"text":"<a data-article-id=\"4\">x</a> <a data-article-id=\"4\">x</a> <a data-article-id=\"5\"></a>"}}
	]}`)
	a := models.Article{ID: 1, IndexEntries: []models.IndexEntry{{ArticleID: 4, Title: "x"}, {ArticleID: 6}}}

	got := Links(a, doc)
	want := []models.Link{
		{FromArticleID: 1, ToArticleID: 4, Anchor: "x"},
		{FromArticleID: 1, ToArticleID: 5, Anchor: "Article #5"},
		{FromArticleID: 1, ToArticleID: 6, Anchor: "Article #6"},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Links = %+v\nwant %+v", got, want)
	}
}
