package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/drafts"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/metrics"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/sequence"
	"github.com/starford/quire/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	svc          *journal.Service
	drafts       drafts.Store
	uploads      storage.Provider
	metrics      *metrics.Metrics
	uploadPrefix string
	maxUpload    int64
	now          func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		svc:          d.Journals,
		drafts:       d.Drafts,
		uploads:      d.Uploads,
		metrics:      d.Metrics,
		uploadPrefix: strings.TrimSuffix(d.UploadPrefix, "/"),
		maxUpload:    d.MaxUpload,
		now:          time.Now,
	}
	if h.uploadPrefix == "" {
		h.uploadPrefix = "/uploads"
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUpload
	}
	return h
}

// idParam parses the {id} URL parameter, answering 400 when it is not a
// positive integer.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return 0, false
	}
	return id, true
}

func setETag(w http.ResponseWriter, a models.Article) {
	w.Header().Set("ETag", `"`+journal.Fingerprint(a)+`"`)
}

// ListJournals handles GET /api/journals.
//
//	@Summary	List journals
//	@Tags		journals
//	@Produce	json
//	@Success	200	{array}	models.Journal
//	@Security	BearerAuth
//	@Router		/journals [get]
func (h *Handler) ListJournals(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListJournals(r.Context())
	if err != nil {
		writeError(w, "list journals", err)
		return
	}
	if list == nil {
		list = []models.Journal{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateJournal handles POST /api/journals.
//
//	@Summary	Create a journal
//	@Tags		journals
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateJournalRequest	true	"Journal to create"
//	@Success	201		{object}	models.Journal
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/journals [post]
func (h *Handler) CreateJournal(w http.ResponseWriter, r *http.Request) {
	var req CreateJournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate(req); err != nil {
		writeError(w, "create journal", err)
		return
	}
	j, err := h.svc.CreateJournal(r.Context(), journal.JournalInput{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "create journal", err, slog.String("title", req.Title))
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// GetJournal handles GET /api/journals/{id}.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	j, err := h.svc.GetJournal(r.Context(), id)
	if err != nil {
		writeError(w, "get journal", err, slog.Int64("journal_id", id))
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// UpdateJournal handles PATCH /api/journals/{id}.
//
//	@Summary	Patch a journal; a new title without a slug re-derives the slug
//	@Tags		journals
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int						true	"Journal id"
//	@Param		body	body		UpdateJournalRequest	true	"Fields to change"
//	@Success	200		{object}	models.Journal
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/journals/{id} [patch]
func (h *Handler) UpdateJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req UpdateJournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate(req); err != nil {
		writeError(w, "update journal", err)
		return
	}
	j, err := h.svc.UpdateJournal(r.Context(), id, journal.JournalPatch{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "update journal", err, slog.Int64("journal_id", id))
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// DeleteJournal handles DELETE /api/journals/{id}.
func (h *Handler) DeleteJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteJournal(r.Context(), id); err != nil {
		writeError(w, "delete journal", err, slog.Int64("journal_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JournalView handles GET /api/journals/{id}/view: the journal with its
// articles in reading order.
func (h *Handler) JournalView(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	view, err := journal.NewLoader(h.svc).LoadJournal(r.Context(), id)
	if err != nil {
		writeError(w, "journal view", err, slog.Int64("journal_id", id))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListArticles handles GET /api/journals/{id}/articles.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListArticles(r.Context(), id)
	if err != nil {
		writeError(w, "list articles", err, slog.Int64("journal_id", id))
		return
	}
	if list == nil {
		list = []models.Article{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateArticle handles POST /api/journals/{id}/articles.
//
//	@Summary	Create an article; content_text, index entries and links are derived
//	@Tags		articles
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int						true	"Journal id"
//	@Param		body	body		CreateArticleRequest	true	"Article to create"
//	@Success	201		{object}	models.Article
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/journals/{id}/articles [post]
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req CreateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate(req); err != nil {
		writeError(w, "create article", err)
		return
	}
	a, err := h.svc.CreateArticle(r.Context(), id, journal.ArticleInput{
		Title:        req.Title,
		Slug:         req.Slug,
		Content:      req.ContentJSON,
		IsIndex:      req.IsIndex,
		IndexEntries: req.IndexEntries,
	})
	if err != nil {
		writeError(w, "create article", err, slog.Int64("journal_id", id), slog.String("title", req.Title))
		return
	}
	setETag(w, a)
	writeJSON(w, http.StatusCreated, a)
}

// SearchArticles handles GET /api/journals/{id}/articles/search.
//
//	@Summary	Search the articles of a journal; a blank query lists recent articles
//	@Tags		search
//	@Produce	json
//	@Param		id		path		int		true	"Journal id"
//	@Param		q		query		string	false	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/journals/{id}/articles/search [get]
func (h *Handler) SearchArticles(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), search.Query{JournalID: id, Text: q, Limit: limit})
	if err != nil {
		writeError(w, "search", err, slog.Int64("journal_id", id), slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}

// GetSequence handles GET /api/journals/{id}/sequence.
func (h *Handler) GetSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.GetJournal(r.Context(), id); err != nil {
		writeError(w, "get sequence", err, slog.Int64("journal_id", id))
		return
	}
	ids, err := h.svc.GetSequence(r.Context(), id)
	if err != nil {
		writeError(w, "get sequence", err, slog.Int64("journal_id", id))
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, SequenceResponse{ArticleIDs: ids})
}

// SetSequence handles POST /api/journals/{id}/sequence.
//
//	@Summary	Replace the reading order of a journal
//	@Tags		sequence
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int				true	"Journal id"
//	@Param		body	body		SequenceRequest	true	"Full order"
//	@Success	200		{object}	SequenceResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/journals/{id}/sequence [post]
func (h *Handler) SetSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req SequenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate(req); err != nil {
		writeError(w, "set sequence", err)
		return
	}
	if _, err := h.svc.GetJournal(r.Context(), id); err != nil {
		writeError(w, "set sequence", err, slog.Int64("journal_id", id))
		return
	}
	kept, err := h.svc.SetSequence(r.Context(), id, req.ArticleIDs)
	dropped := sequence.Difference(req.ArticleIDs, kept)
	if h.metrics != nil {
		h.metrics.ObserveSequenceSave(err, len(dropped))
	}
	if err != nil {
		writeError(w, "set sequence", err, slog.Int64("journal_id", id))
		return
	}
	if kept == nil {
		kept = []int64{}
	}
	if len(dropped) > 0 {
		slog.Warn("sequence: ids dropped", slog.Int64("journal_id", id), slog.Any("dropped", dropped))
	}
	writeJSON(w, http.StatusOK, SequenceResponse{ArticleIDs: kept, DroppedIDs: dropped})
}

// GetArticle handles GET /api/articles/{id}. The ETag is the revision
// fingerprint expected by If-Match on PATCH.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	a, err := h.svc.GetArticle(r.Context(), id)
	if err != nil {
		writeError(w, "get article", err, slog.Int64("article_id", id))
		return
	}
	setETag(w, a)
	writeJSON(w, http.StatusOK, a)
}

// UpdateArticle handles PATCH /api/articles/{id}.
//
//	@Summary	Patch an article with optimistic concurrency
//	@Tags		articles
//	@Accept		json
//	@Produce	json
//	@Param		id			path		int						true	"Article id"
//	@Param		If-Match	header		string					false	"ETag of the revision being edited"
//	@Param		body		body		UpdateArticleRequest	true	"Fields to change"
//	@Success	200			{object}	models.Article
//	@Failure	400			{object}	errResponse
//	@Failure	404			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/articles/{id} [patch]
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req UpdateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate(req); err != nil {
		writeError(w, "update article", err)
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	a, err := h.svc.UpdateArticle(r.Context(), id, journal.ArticlePatch{
		Title:        req.Title,
		Slug:         req.Slug,
		Content:      req.ContentJSON,
		IsIndex:      req.IsIndex,
		IndexEntries: req.IndexEntries,
		IfMatch:      ifMatch,
	})
	if err != nil {
		writeError(w, "update article", err, slog.Int64("article_id", id))
		return
	}
	setETag(w, a)
	writeJSON(w, http.StatusOK, a)
}

// DeleteArticle handles DELETE /api/articles/{id}.
func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteArticle(r.Context(), id); err != nil {
		writeError(w, "delete article", err, slog.Int64("article_id", id))
		return
	}
	if h.drafts != nil {
		if err := h.drafts.Delete(r.Context(), id); err != nil {
			slog.Warn("delete draft failed", slog.Int64("article_id", id), slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArticleView handles GET /api/articles/{id}/view: rendered blocks,
// neighbors and backlinks in one response.
func (h *Handler) ArticleView(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	view, err := journal.NewLoader(h.svc).LoadArticle(r.Context(), id)
	if err != nil {
		writeError(w, "article view", err, slog.Int64("article_id", id))
		return
	}
	setETag(w, view.Article)
	writeJSON(w, http.StatusOK, view)
}

// RenderedArticle handles GET /api/articles/{id}/rendered.
func (h *Handler) RenderedArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	out, err := h.svc.RenderArticle(r.Context(), id)
	if err != nil {
		writeError(w, "render article", err, slog.Int64("article_id", id))
		return
	}
	setETag(w, out.Article)
	writeJSON(w, http.StatusOK, out)
}

// Neighbors handles GET /api/articles/{id}/neighbors.
func (h *Handler) Neighbors(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Neighbors(r.Context(), id)
	if err != nil {
		writeError(w, "neighbors", err, slog.Int64("article_id", id))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Backlinks handles GET /api/articles/{id}/backlinks.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	links, err := h.svc.Backlinks(r.Context(), id)
	if err != nil {
		writeError(w, "backlinks", err, slog.Int64("article_id", id))
		return
	}
	if links == nil {
		links = []models.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}
