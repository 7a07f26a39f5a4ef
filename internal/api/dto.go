package api

import (
	"encoding/json"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/sequence"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// validate runs the ozzo rules of v and classifies failures as validation
// errors.
func validate(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

// CreateJournalRequest is the request body for creating a journal.
type CreateJournalRequest struct {
	Title       string  `json:"title" example:"Field Notes" validate:"required"`
	Slug        string  `json:"slug,omitempty" example:"field-notes"`
	Description *string `json:"description,omitempty"`
}

func (r CreateJournalRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Slug, validation.Length(0, 200), validation.Match(slugRe)),
	)
}

// UpdateJournalRequest is the request body for patching a journal.
type UpdateJournalRequest struct {
	Title       *string `json:"title,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r UpdateJournalRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Slug, validation.NilOrNotEmpty, validation.Match(slugRe)),
	)
}

// CreateArticleRequest is the request body for creating an article.
// content_json is the block document of the authoring surface.
type CreateArticleRequest struct {
	Title        string              `json:"title" example:"Trail Log" validate:"required"`
	Slug         string              `json:"slug,omitempty"`
	ContentJSON  json.RawMessage     `json:"content_json,omitempty" swaggertype:"object"`
	IsIndex      *bool               `json:"is_index,omitempty"`
	IndexEntries []models.IndexEntry `json:"index_entries,omitempty"`
}

func (r CreateArticleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&r.Slug, validation.Length(0, 300), validation.Match(slugRe)),
		validation.Field(&r.IndexEntries, validation.By(positiveEntries)),
	)
}

// UpdateArticleRequest is the request body for patching an article.
type UpdateArticleRequest struct {
	Title        *string              `json:"title,omitempty"`
	Slug         *string              `json:"slug,omitempty"`
	ContentJSON  json.RawMessage      `json:"content_json,omitempty" swaggertype:"object"`
	IsIndex      *bool                `json:"is_index,omitempty"`
	IndexEntries *[]models.IndexEntry `json:"index_entries,omitempty"`
}

func (r UpdateArticleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, 300)),
		validation.Field(&r.Slug, validation.NilOrNotEmpty, validation.Match(slugRe)),
		validation.Field(&r.IndexEntries, validation.By(positiveEntries)),
	)
}

func positiveEntries(v any) error {
	var entries []models.IndexEntry
	switch e := v.(type) {
	case []models.IndexEntry:
		entries = e
	case *[]models.IndexEntry:
		if e != nil {
			entries = *e
		}
	}
	for _, e := range entries {
		if e.ArticleID <= 0 {
			return validation.NewError("validation_entry_id", "article_id must be positive")
		}
	}
	return nil
}

// SequenceRequest is the full reading order of a journal.
type SequenceRequest struct {
	ArticleIDs []int64 `json:"article_ids" validate:"required"`
}

func (r SequenceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ArticleIDs,
			validation.NotNil,
			validation.Each(validation.Min(int64(1))),
			validation.By(func(any) error { return sequence.ValidateOrder(r.ArticleIDs) }),
		),
	)
}

// SequenceResponse is the order the store kept. dropped_ids are sent ids
// that are not articles of the journal.
type SequenceResponse struct {
	ArticleIDs []int64 `json:"article_ids" validate:"required"`
	DroppedIDs []int64 `json:"dropped_ids,omitempty"`
}

// DraftRequest is the request body for stashing an unsaved edit.
type DraftRequest struct {
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	ContentJSON json.RawMessage `json:"content_json" swaggertype:"object" validate:"required"`
}

func (r DraftRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ContentJSON, validation.Required),
	)
}

// SearchResponse wraps search hits with their highlight spans.
type SearchResponse struct {
	Results []search.Hit `json:"results" validate:"required"`
}

// UploadResponse is returned after a successful image upload.
type UploadResponse struct {
	Name string `json:"name" example:"0b6f1c1e-8a1d-4d55-9f0e-3c8b2b1a7e10.png" validate:"required"`
	Size int64  `json:"size" example:"12345" validate:"required"`
	URL  string `json:"url" example:"/uploads/0b6f1c1e-8a1d-4d55-9f0e-3c8b2b1a7e10.png" validate:"required"`
}
