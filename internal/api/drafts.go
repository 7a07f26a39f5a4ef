package api

import (
	"log/slog"
	"net/http"

	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/drafts"
)

// GetDraft handles GET /api/articles/{id}/draft.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	d, err := h.drafts.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get draft", err, slog.Int64("article_id", id))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PutDraft handles PUT /api/articles/{id}/draft. The article must exist and
// the content must be a block document.
//
//	@Summary	Stash an unsaved edit of an article
//	@Tags		drafts
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int				true	"Article id"
//	@Param		body	body		DraftRequest	true	"Unsaved edit"
//	@Success	200		{object}	drafts.Draft
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/articles/{id}/draft [put]
func (h *Handler) PutDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate(req); err != nil {
		writeError(w, "put draft", err)
		return
	}
	if _, err := blockdoc.Parse(req.ContentJSON); err != nil {
		writeError(w, "put draft", err)
		return
	}
	if _, err := h.svc.GetArticle(r.Context(), id); err != nil {
		writeError(w, "put draft", err, slog.Int64("article_id", id))
		return
	}
	d := drafts.Draft{
		ArticleID:   id,
		Title:       req.Title,
		Slug:        req.Slug,
		ContentJSON: req.ContentJSON,
		SavedAt:     h.now().UTC(),
	}
	if err := h.drafts.Save(r.Context(), d); err != nil {
		writeError(w, "put draft", err, slog.Int64("article_id", id))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDraft handles DELETE /api/articles/{id}/draft.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.drafts.Delete(r.Context(), id); err != nil {
		writeError(w, "delete draft", err, slog.Int64("article_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
