// Package inbox imports article files dropped into a watched directory.
//
// A file <journal-slug>/<name>.md or <journal-slug>/<name>.json becomes a
// new article of that journal and is then moved below .imported/.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/storage"
)

// ImportedDir receives processed files.
const ImportedDir = ".imported"

// Extensions lists the file types the inbox accepts.
var Extensions = []string{".md", ".json"}

// Articles is the journal collaborator of the inbox.
type Articles interface {
	ListJournals(ctx context.Context) ([]models.Journal, error)
	ListArticles(ctx context.Context, journalID int64) ([]models.Article, error)
	CreateArticle(ctx context.Context, journalID int64, in journal.ArticleInput) (models.Article, error)
}

// Callback is told about every imported article.
type Callback func(rel string, a models.Article)

// Importer turns inbox files into articles.
type Importer struct {
	articles Articles
	store    storage.Provider
	logger   *slog.Logger
}

// New creates an importer reading from store.
func New(articles Articles, store storage.Provider, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{articles: articles, store: store, logger: logger}
}

// Sweep imports every pending file and returns how many succeeded.
// Failures are logged and the files stay in place.
func (im *Importer) Sweep(ctx context.Context, cb Callback) (int, error) {
	files, err := im.store.List("", Extensions...)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if _, err := im.importLogged(ctx, f.Path, cb); err == nil {
			n++
		}
	}
	return n, nil
}

func (im *Importer) importLogged(ctx context.Context, rel string, cb Callback) (models.Article, error) {
	a, err := im.Import(ctx, rel)
	if err != nil {
		im.logger.Warn("inbox: import failed", slog.String("path", rel), slog.String("error", err.Error()))
		return models.Article{}, err
	}
	im.logger.Info("inbox: imported",
		slog.String("path", rel),
		slog.Int64("journal_id", a.JournalID),
		slog.Int64("article_id", a.ID),
	)
	if cb != nil {
		cb(rel, a)
	}
	return a, nil
}

// Import creates an article from the file at rel and moves the file below
// ImportedDir.
func (im *Importer) Import(ctx context.Context, rel string) (models.Article, error) {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	parts := strings.Split(rel, "/")
	if len(parts) != 2 || strings.HasPrefix(parts[0], ".") {
		return models.Article{}, apperr.Validation("%s: expected <journal-slug>/<file>", rel)
	}
	ext := strings.ToLower(path.Ext(parts[1]))
	name := strings.TrimSuffix(parts[1], path.Ext(parts[1]))

	j, err := im.journalBySlug(ctx, parts[0])
	if err != nil {
		return models.Article{}, err
	}
	data, err := im.store.Read(rel)
	if err != nil {
		return models.Article{}, err
	}

	var in journal.ArticleInput
	switch ext {
	case ".md":
		in, err = FromMarkdown(ctx, im.articles, j.ID, data)
	case ".json":
		in, err = fromJSON(data)
	default:
		return models.Article{}, apperr.Validation("%s: unsupported file type", rel)
	}
	if err != nil {
		return models.Article{}, fmt.Errorf("inbox: %s: %w", rel, err)
	}
	if strings.TrimSpace(in.Title) == "" {
		in.Title = name
	}

	a, err := im.articles.CreateArticle(ctx, j.ID, in)
	if err != nil {
		return models.Article{}, err
	}
	if dst, err := im.store.Archive(rel, ImportedDir); err != nil {
		im.logger.Warn("inbox: archive failed", slog.String("path", rel), slog.String("error", err.Error()))
	} else {
		im.logger.Debug("inbox: archived", slog.String("path", rel), slog.String("to", dst))
	}
	return a, nil
}

func (im *Importer) journalBySlug(ctx context.Context, slug string) (models.Journal, error) {
	journals, err := im.articles.ListJournals(ctx)
	if err != nil {
		return models.Journal{}, err
	}
	for _, j := range journals {
		if j.Slug == slug {
			return j, nil
		}
	}
	return models.Journal{}, fmt.Errorf("journal %q: %w", slug, apperr.ErrNotFound)
}

// Lister lists the articles of a journal.
type Lister interface {
	ListArticles(ctx context.Context, journalID int64) ([]models.Article, error)
}

// FromMarkdown parses frontmatter, resolves [[wikilinks]] against the
// titles and slugs of the journal's articles and converts the body to
// blocks. Unresolved wikilinks keep their text.
func FromMarkdown(ctx context.Context, articles Lister, journalID int64, data []byte) (journal.ArticleInput, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return journal.ArticleInput{}, err
	}

	var byName map[string]int64
	if len(res.Links) > 0 {
		existing, err := articles.ListArticles(ctx, journalID)
		if err != nil {
			return journal.ArticleInput{}, err
		}
		byName = make(map[string]int64, 2*len(existing))
		for _, a := range existing {
			byName[strings.ToLower(a.Title)] = a.ID
			byName[strings.ToLower(a.Slug)] = a.ID
		}
	}
	body := parser.RewriteLinks(res.Body, func(target string) (int64, bool) {
		id, ok := byName[strings.ToLower(target)]
		return id, ok
	})

	content, err := json.Marshal(blockdoc.FromMarkdown([]byte(body)))
	if err != nil {
		return journal.ArticleInput{}, err
	}
	return journal.ArticleInput{
		Title:   res.Title,
		Slug:    res.Slug,
		Content: content,
		IsIndex: res.IsIndex,
	}, nil
}

type jsonArticle struct {
	Title        string              `json:"title"`
	Slug         string              `json:"slug"`
	ContentJSON  json.RawMessage     `json:"content_json"`
	IsIndex      *bool               `json:"is_index"`
	IndexEntries []models.IndexEntry `json:"index_entries"`
}

// fromJSON accepts either an article payload with content_json or a bare
// block document.
func fromJSON(data []byte) (journal.ArticleInput, error) {
	var p jsonArticle
	if err := json.Unmarshal(data, &p); err != nil {
		return journal.ArticleInput{}, apperr.Validation("invalid JSON: %v", err)
	}
	if p.ContentJSON == nil {
		if _, err := blockdoc.Parse(data); err != nil {
			return journal.ArticleInput{}, err
		}
		return journal.ArticleInput{Content: data}, nil
	}
	return journal.ArticleInput{
		Title:        p.Title,
		Slug:         p.Slug,
		Content:      p.ContentJSON,
		IsIndex:      p.IsIndex,
		IndexEntries: p.IndexEntries,
	}, nil
}
