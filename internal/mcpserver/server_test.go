package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/testutil"
)

func testServer(t *testing.T) (*Server, *journal.Service, storage.Provider) {
	t.Helper()
	_, uploads := testutil.TestDir(t)
	svc := journal.NewService(testutil.TestDB(t))
	return New(svc, WithUploads(uploads, "/uploads")), svc, uploads
}

func mustJournal(t *testing.T, svc *journal.Service, title string) models.Journal {
	t.Helper()
	j, err := svc.CreateJournal(context.Background(), journal.JournalInput{Title: title})
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no call-tool test helper, so the handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_articles":
		result, err = srv.searchArticles(ctx, req)
	case "read_article":
		result, err = srv.readArticle(ctx, req)
	case "list_journal":
		result, err = srv.listJournal(ctx, req)
	case "create_article":
		result, err = srv.createArticle(ctx, req)
	case "move_article":
		result, err = srv.moveArticle(ctx, req)
	case "get_block_format":
		result, err = srv.getBlockFormat(ctx, req)
	case "upload_image":
		result, err = srv.uploadImage(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadArticle(t *testing.T) {
	srv, svc, _ := testServer(t)
	ctx := context.Background()
	j := mustJournal(t, svc, "Field Notes")
	compass, err := svc.CreateArticle(ctx, j.ID, journal.ArticleInput{Title: "Compass"})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "create_article", map[string]interface{}{
		"journal_id": float64(j.ID),
		"markdown":   "---\ntitle: Trail\n---\n\nFollowed the [[Compass]] north.\n",
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "created: #") {
		t.Fatalf("create result = %q", resultText(r))
	}

	list, _ := svc.ListArticles(ctx, j.ID)
	if len(list) != 2 {
		t.Fatalf("articles = %d, want 2", len(list))
	}
	trail := list[1]

	r = callTool(t, srv, "read_article", map[string]interface{}{"id": float64(trail.ID)})
	var got readResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if got.Title != "Trail" || got.Text != "Followed the Compass north." {
		t.Errorf("read = %+v", got)
	}

	r = callTool(t, srv, "read_article", map[string]interface{}{"id": float64(compass.ID), "format": "html"})
	got = readResult{}
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	if len(got.Backlinks) != 1 || got.Backlinks[0].FromArticleID != trail.ID {
		t.Errorf("backlinks = %+v", got.Backlinks)
	}
	if got.Text != "" {
		t.Errorf("html format also returned text %q", got.Text)
	}
}

func TestCreateArticle_Title(t *testing.T) {
	srv, svc, _ := testServer(t)
	j := mustJournal(t, svc, "J")

	r := callTool(t, srv, "create_article", map[string]interface{}{
		"journal_id": float64(j.ID),
		"markdown":   "# From Heading\n\nbody",
	})
	if !strings.HasSuffix(resultText(r), "From Heading (from-heading)") {
		t.Errorf("heading title result = %q", resultText(r))
	}

	r = callTool(t, srv, "create_article", map[string]interface{}{
		"journal_id": float64(j.ID),
		"markdown":   "no heading here",
	})
	if !r.IsError {
		t.Error("expected error without any title")
	}

	r = callTool(t, srv, "create_article", map[string]interface{}{
		"journal_id": float64(j.ID),
		"markdown":   "no heading here",
		"title":      "Given",
	})
	if r.IsError {
		t.Errorf("explicit title: %s", resultText(r))
	}

	r = callTool(t, srv, "create_article", map[string]interface{}{
		"journal_id": float64(999),
		"markdown":   "# X",
	})
	if !r.IsError || resultText(r) != "not found" {
		t.Errorf("missing journal = %q", resultText(r))
	}
}

func TestListJournal(t *testing.T) {
	srv, svc, _ := testServer(t)
	ctx := context.Background()
	j := mustJournal(t, svc, "Field Notes")
	a, _ := svc.CreateArticle(ctx, j.ID, journal.ArticleInput{Title: "First"})
	b, _ := svc.CreateArticle(ctx, j.ID, journal.ArticleInput{Title: "Second"})
	if _, err := svc.SetSequence(ctx, j.ID, []int64{b.ID, a.ID}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_journal", map[string]interface{}{})
	if !strings.Contains(resultText(r), "Field Notes (field-notes)") {
		t.Errorf("journals = %q", resultText(r))
	}

	r = callTool(t, srv, "list_journal", map[string]interface{}{"journal_id": float64(j.ID)})
	lines := strings.Split(resultText(r), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "Second") || !strings.HasSuffix(lines[1], "First") {
		t.Errorf("order = %q", lines)
	}
}

func TestMoveArticle(t *testing.T) {
	srv, svc, _ := testServer(t)
	ctx := context.Background()
	j := mustJournal(t, svc, "J")
	a, _ := svc.CreateArticle(ctx, j.ID, journal.ArticleInput{Title: "First"})
	b, _ := svc.CreateArticle(ctx, j.ID, journal.ArticleInput{Title: "Second"})
	if _, err := svc.SetSequence(ctx, j.ID, []int64{a.ID, b.ID}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "move_article", map[string]interface{}{
		"journal_id": float64(j.ID), "article_id": float64(b.ID), "direction": "up",
	})
	if r.IsError {
		t.Fatalf("move: %s", resultText(r))
	}
	ids, err := svc.GetSequence(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != b.ID || ids[1] != a.ID {
		t.Errorf("sequence = %v, want [%d %d]", ids, b.ID, a.ID)
	}

	r = callTool(t, srv, "move_article", map[string]interface{}{
		"journal_id": float64(j.ID), "article_id": float64(b.ID), "direction": "up",
	})
	if resultText(r) != "order unchanged" {
		t.Errorf("move first up = %q", resultText(r))
	}

	r = callTool(t, srv, "move_article", map[string]interface{}{
		"journal_id": float64(j.ID), "article_id": float64(999), "direction": "down",
	})
	if !r.IsError {
		t.Errorf("unknown article = %q", resultText(r))
	}
	r = callTool(t, srv, "move_article", map[string]interface{}{
		"journal_id": float64(j.ID), "article_id": float64(a.ID), "direction": "sideways",
	})
	if !r.IsError {
		t.Errorf("bad direction = %q", resultText(r))
	}
}

func TestSearchArticles_MarksMatches(t *testing.T) {
	srv, svc, _ := testServer(t)
	j := mustJournal(t, svc, "J")
	content := []byte(`{"blocks":[{"type":"paragraph","data":{"text":"An old compass."}}]}`)
	if _, err := svc.CreateArticle(context.Background(), j.ID, journal.ArticleInput{Title: "Compass", Content: content}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "search_articles", map[string]interface{}{
		"journal_id": float64(j.ID),
		"query":      "compass",
	})
	var hits []searchResult
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(hits) != 1 || hits[0].Title != "**Compass**" || !strings.Contains(hits[0].Excerpt, "**compass**") {
		t.Errorf("hits = %+v", hits)
	}
}

func TestReadArticleMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_article", map[string]interface{}{"id": float64(404)})
	if !r.IsError {
		t.Error("expected error for missing article")
	}
}

func TestBlockFormat(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_block_format", nil)
	if !strings.Contains(resultText(r), "data-article-id") {
		t.Error("format contract does not describe article links")
	}

	contents, err := srv.readBlockFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != BlockFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}

func TestUploadImage(t *testing.T) {
	srv, _, uploads := testServer(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	r := callTool(t, srv, "upload_image", map[string]interface{}{
		"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	if r.IsError {
		t.Fatalf("upload: %s", resultText(r))
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.URL, "/uploads/") || !strings.HasSuffix(res.URL, ".png") {
		t.Errorf("url = %q", res.URL)
	}
	data, err := uploads.Read(strings.TrimPrefix(res.URL, "/uploads/"))
	if err != nil || string(data) != string(png) {
		t.Errorf("stored image = %q, %v", data, err)
	}

	cases := map[string]string{
		"not an image": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello")),
		"not base64":   "data:image/png,raw",
		"loopback":     "http://127.0.0.1/x.png",
		"bad scheme":   "file:///etc/passwd",
	}
	for name, u := range cases {
		if r := callTool(t, srv, "upload_image", map[string]interface{}{"url": u}); !r.IsError {
			t.Errorf("%s: expected error, got %s", name, resultText(r))
		}
	}
}
