package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/sequence"
)

// moveArticle shifts one article a step up or down the reading order of its
// journal and persists the whole order.
func (s *Server) moveArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	journalID, err := req.RequireInt("journal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	articleID, err := req.RequireInt("article_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var direction int
	switch req.GetString("direction", "") {
	case "up":
		direction = -1
	case "down":
		direction = 1
	default:
		return mcp.NewToolResultError("direction must be up or down"), nil
	}

	live, err := s.svc.ListArticles(ctx, int64(journalID))
	if err != nil {
		return toolError(err), nil
	}
	eng := sequence.NewEngine(s.svc, int64(journalID))
	order, err := eng.Load(ctx, live)
	if err != nil {
		return toolError(err), nil
	}
	index := -1
	for i, a := range order {
		if a.ID == int64(articleID) {
			index = i
			break
		}
	}
	if index < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("article %d is not in journal %d", articleID, journalID)), nil
	}
	if !eng.Move(index, direction) && !eng.Dirty() {
		return mcp.NewToolResultText("order unchanged"), nil
	}
	res, err := eng.Persist(ctx)
	if err != nil {
		return toolError(err), nil
	}

	order = eng.Order()
	lines := make([]string, 0, len(order)+1)
	for i, a := range order {
		lines = append(lines, fmt.Sprintf("%d. #%d %s", i+1, a.ID, a.Title))
	}
	if len(res.Dropped) > 0 {
		lines = append(lines, fmt.Sprintf("dropped: %v", res.Dropped))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
