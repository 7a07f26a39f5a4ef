package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/drafts"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/metrics"
	"github.com/starford/quire/internal/storage"
)

// Deps are the collaborators of the HTTP layer. Drafts, Uploads, Metrics
// and Events are optional; their routes answer 404 when unset.
type Deps struct {
	Journals *journal.Service
	Drafts   drafts.Store
	Uploads  storage.Provider
	Metrics  *metrics.Metrics
	// Events, if set, is mounted at GET /events inside the auth group.
	Events http.Handler

	AuthEnabled bool
	Token       string
	// UploadPrefix is the public URL prefix of uploaded files.
	UploadPrefix string
	MaxUpload    int64
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	r.Route("/journals", func(r chi.Router) {
		r.Get("/", h.ListJournals)
		r.Post("/", h.CreateJournal)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJournal)
			r.Patch("/", h.UpdateJournal)
			r.Delete("/", h.DeleteJournal)
			r.Get("/view", h.JournalView)
			r.Get("/articles", h.ListArticles)
			r.Post("/articles", h.CreateArticle)
			r.Get("/articles/search", h.SearchArticles)
			r.Get("/sequence", h.GetSequence)
			r.Post("/sequence", h.SetSequence)
		})
	})

	r.Route("/articles/{id}", func(r chi.Router) {
		r.Get("/", h.GetArticle)
		r.Patch("/", h.UpdateArticle)
		r.Delete("/", h.DeleteArticle)
		r.Get("/view", h.ArticleView)
		r.Get("/rendered", h.RenderedArticle)
		r.Get("/neighbors", h.Neighbors)
		r.Get("/backlinks", h.Backlinks)
		if d.Drafts != nil {
			r.Get("/draft", h.GetDraft)
			r.Put("/draft", h.PutDraft)
			r.Delete("/draft", h.DeleteDraft)
		}
	})

	if d.Uploads != nil {
		r.Post("/uploads", h.Upload)
	}

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
