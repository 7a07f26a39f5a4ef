package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/quire/internal/mcpserver"
)

// ServeMCP serves the MCP tools over stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := app.logger()

	c, err := openCore(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	srv := mcpserver.New(c.svc, mcpserver.WithUploads(c.uploads, cfg.Uploads.URLPrefix))
	logger.Info("MCP server starting on stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("MCP server stopped", slog.String("reason", ctx.Err().Error()))
		return nil
	}
}
