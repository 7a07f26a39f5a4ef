package api

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/quire/internal/storage"
)

const defaultMaxUpload = 10 << 20 // 10 MB

// imageTypes maps accepted upload extensions to their content type.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Upload handles POST /api/uploads (multipart/form-data, field "file").
// Files are stored under a random name keeping the original extension.
//
//	@Summary	Upload an image for an image block
//	@Tags		uploads
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file	formData	file	true	"Image file"
//	@Success	201		{object}	UploadResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := imageTypes[ext]; !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported file type"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	name := uuid.NewString() + ext
	if err := h.uploads.Write(name, data); err != nil {
		slog.Error("upload write failed", slog.String("name", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Name: name,
		Size: int64(len(data)),
		URL:  h.uploadPrefix + "/" + name,
	})
}

// ServeUploads returns a handler for GET {prefix}/{name} serving uploaded
// files from store. Names with path elements are rejected.
func ServeUploads(store storage.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
			return
		}
		ctype, ok := imageTypes[strings.ToLower(filepath.Ext(name))]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f, info, err := store.Open(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", ctype)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeContent(w, r, name, info.ModTime, f)
	}
}
