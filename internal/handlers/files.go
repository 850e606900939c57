package handlers

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/areassist/apiserver/internal/storage"
)

// FilesHandler streams uploaded photos out of object storage so clients
// never talk to the storage backend directly.
type FilesHandler struct {
	storage *storage.Storage
}

func NewFilesHandler(st *storage.Storage) *FilesHandler {
	return &FilesHandler{storage: st}
}

// FilesRouter registers the upload download route on the given router.
func FilesRouter(r chi.Router, st *storage.Storage) {
	handler := NewFilesHandler(st)

	r.Get("/{key}", handler.Get)
}

func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	// Keys are flat UUID filenames; anything with a path in it is not ours.
	if key == "" || key != path.Base(key) || strings.ContainsAny(key, "\\") {
		writeError(w, http.StatusBadRequest, "invalid file key")
		return
	}

	object, err := h.storage.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, object); err != nil {
		// Headers are gone; nothing left to report to the client.
		return
	}
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
