package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/quire/internal/drafts"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/metrics"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/store"
)

// core holds the collaborators shared by the serve, mcp and edit commands.
type core struct {
	cfg     *Config
	logger  *slog.Logger
	db      *store.DB
	meili   *search.Meili
	redis   *drafts.RedisStore
	drafts  drafts.Store
	uploads *storage.FS
	metrics *metrics.Metrics
	svc     *journal.Service
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openCore opens the database and the optional backends. events may be nil.
func openCore(cfg *Config, logger *slog.Logger, events journal.Events) (*core, error) {
	c := &core{cfg: cfg, logger: logger, metrics: metrics.New()}

	uploads, err := storage.NewFS(cfg.Uploads.Path)
	if err != nil {
		return nil, fmt.Errorf("init uploads: %w", err)
	}
	c.uploads = uploads

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	c.db = db

	if cfg.Search.MeiliEnabled() {
		c.meili = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliKey)
	}
	searcher := search.NewService(c.meili, db)
	searcher.OnSearch(func(b search.Backend) { c.metrics.ObserveSearch(string(b)) })

	if cfg.Drafts.RedisURL != "" {
		rs, err := drafts.NewRedisStore(cfg.Drafts.RedisURL, cfg.Drafts.TTL)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("init drafts: %w", err)
		}
		c.redis = rs
		c.drafts = rs
	} else {
		c.drafts = drafts.NewMemoryStore(cfg.Drafts.TTL)
	}

	opts := []journal.Option{
		journal.WithSearch(searcher),
		journal.WithRenderCacheTTL(cfg.Render.CacheTTL),
		journal.WithRenderObserver(c.metrics.ObserveRender),
	}
	if events != nil {
		opts = append(opts, journal.WithEvents(events))
	}
	c.svc = journal.NewService(db, opts...)

	logger.Info("Backends ready",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("meilisearch", c.meili != nil),
		slog.Bool("redis_drafts", c.redis != nil))
	return c, nil
}

// ready reports whether the required backends answer.
func (c *core) ready(ctx context.Context) error {
	if err := c.db.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (c *core) close() {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.meili != nil {
		c.meili.Close()
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("close backends", slog.String("error", err.Error()))
	}
}
