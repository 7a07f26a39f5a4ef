// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quire tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/inbox"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/storage"
)

// Server wraps the MCP server with Quire tools.
type Server struct {
	mcp *server.MCPServer
	svc *journal.Service

	uploads      storage.Provider
	uploadPrefix string
}

// Option configures a Server.
type Option func(*Server)

// WithUploads enables the upload_image tool, storing images in store and
// returning URLs under prefix.
func WithUploads(store storage.Provider, prefix string) Option {
	return func(s *Server) {
		s.uploads = store
		s.uploadPrefix = strings.TrimSuffix(prefix, "/")
	}
}

// New creates a new MCP server with all Quire tools registered.
func New(svc *journal.Service, opts ...Option) *Server {
	s := &Server{svc: svc, uploadPrefix: "/uploads"}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"Quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Full-text search through the titles and text of a journal's articles. "+
			"Matched words are marked with **double asterisks** in the results."),
		mcp.WithNumber("journal_id", mcp.Required(), mcp.Description("Journal to search")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("read_article",
		mcp.WithDescription("Read an article: its text, the articles linking to it and its "+
			"previous/next article in reading order."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Article id")),
		mcp.WithString("format", mcp.Enum("text", "html", "blocks"),
			mcp.Description("text (default), rendered html, or the raw block document")),
	), s.readArticle)

	s.mcp.AddTool(mcp.NewTool("list_journal",
		mcp.WithDescription("Without journal_id, list all journals. With journal_id, list the "+
			"journal's articles in reading order."),
		mcp.WithNumber("journal_id", mcp.Description("Journal to list")),
	), s.listJournal)

	s.mcp.AddTool(mcp.NewTool("move_article",
		mcp.WithDescription("Move an article one step up or down the reading order of its journal."),
		mcp.WithNumber("journal_id", mcp.Required(), mcp.Description("Journal of the article")),
		mcp.WithNumber("article_id", mcp.Required(), mcp.Description("Article to move")),
		mcp.WithString("direction", mcp.Required(), mcp.Enum("up", "down")),
	), s.moveArticle)

	s.mcp.AddTool(mcp.NewTool("create_article",
		mcp.WithDescription("Create an article from Markdown. Read the format first via "+
			"the get_block_format tool or the "+BlockFormatURI+" resource."),
		mcp.WithNumber("journal_id", mcp.Required(), mcp.Description("Journal the article belongs to")),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("Markdown body, optionally with YAML frontmatter")),
		mcp.WithString("title", mcp.Description("Title; overrides frontmatter and the first heading")),
	), s.createArticle)

	s.mcp.AddTool(mcp.NewTool("get_block_format",
		mcp.WithDescription("Returns the Quire article format: accepted Markdown and the stored block document."),
	), s.getBlockFormat)

	if s.uploads != nil {
		s.mcp.AddTool(mcp.NewTool("upload_image",
			mcp.WithDescription("Store an image from an http(s) URL or a base64 data URI and return "+
				"its URL for use in Markdown or an image block."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		), s.uploadImage)
	}

	s.mcp.AddResource(
		mcp.NewResource(BlockFormatURI, "Article Format",
			mcp.WithResourceDescription("Markdown and block document formats of Quire articles."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBlockFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool result the model can act on.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(apperr.Message(err))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

type searchResult struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	journalID, err := req.RequireInt("journal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, search.Query{
		JournalID: int64(journalID),
		Text:      query,
		Limit:     req.GetInt("limit", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	out := make([]searchResult, len(hits))
	for i, h := range hits {
		out[i] = searchResult{
			ID:      h.ID,
			Title:   marked(h.TitleSpans),
			Excerpt: marked(h.ExcerptSpans),
		}
	}
	return jsonResult(out), nil
}

// marked joins spans, wrapping matches in ** for plain-text consumers.
func marked(spans []search.Span) string {
	var sb strings.Builder
	for _, sp := range spans {
		if sp.Match {
			sb.WriteString("**" + sp.Text + "**")
		} else {
			sb.WriteString(sp.Text)
		}
	}
	return sb.String()
}

type readResult struct {
	ID        int64            `json:"id"`
	JournalID int64            `json:"journal_id"`
	Title     string           `json:"title"`
	Slug      string           `json:"slug"`
	IsIndex   bool             `json:"is_index"`
	Text      string           `json:"text,omitempty"`
	HTML      string           `json:"html,omitempty"`
	Blocks    json.RawMessage  `json:"blocks,omitempty"`
	Neighbors models.Neighbors `json:"neighbors"`
	Backlinks []models.Link    `json:"backlinks"`
}

func (s *Server) readArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := journal.NewLoader(s.svc).LoadArticle(ctx, int64(id))
	if err != nil {
		return toolError(err), nil
	}
	a := view.Article
	out := readResult{
		ID:        a.ID,
		JournalID: a.JournalID,
		Title:     a.Title,
		Slug:      a.Slug,
		IsIndex:   a.IsIndex,
		Neighbors: view.Neighbors,
		Backlinks: view.Backlinks,
	}
	if out.Backlinks == nil {
		out.Backlinks = []models.Link{}
	}
	switch req.GetString("format", "text") {
	case "html":
		out.HTML = view.HTML
	case "blocks":
		out.Blocks = a.ContentJSON
	default:
		out.Text = a.ContentText
	}
	return jsonResult(out), nil
}

func (s *Server) listJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	journalID := req.GetInt("journal_id", 0)
	if journalID <= 0 {
		journals, err := s.svc.ListJournals(ctx)
		if err != nil {
			return toolError(err), nil
		}
		if len(journals) == 0 {
			return mcp.NewToolResultText("no journals"), nil
		}
		lines := make([]string, len(journals))
		for i, j := range journals {
			lines[i] = fmt.Sprintf("#%d %s (%s)", j.ID, j.Title, j.Slug)
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	}

	view, err := journal.NewLoader(s.svc).LoadJournal(ctx, int64(journalID))
	if err != nil {
		return toolError(err), nil
	}
	if len(view.Order) == 0 {
		return mcp.NewToolResultText("no articles"), nil
	}
	lines := make([]string, len(view.Order))
	for i, a := range view.Order {
		kind := ""
		if a.IsIndex {
			kind = " [index]"
		}
		lines[i] = fmt.Sprintf("%d. #%d %s%s", i+1, a.ID, a.Title, kind)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	journalID, err := req.RequireInt("journal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	markdown, err := req.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in, err := inbox.FromMarkdown(ctx, s.svc, int64(journalID), []byte(markdown))
	if err != nil {
		return toolError(err), nil
	}
	if title := strings.TrimSpace(req.GetString("title", "")); title != "" {
		in.Title = title
	}
	if in.Title == "" {
		return mcp.NewToolResultError("title is required: pass title or start the markdown with a # heading"), nil
	}

	a, err := s.svc.CreateArticle(ctx, int64(journalID), in)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: #%d %s (%s)", a.ID, a.Title, a.Slug)), nil
}

func (s *Server) getBlockFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BlockFormatContract), nil
}

func (s *Server) readBlockFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      BlockFormatURI,
			MIMEType: "text/markdown",
			Text:     BlockFormatContract,
		},
	}, nil
}
