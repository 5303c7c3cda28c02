package media

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves locally stored media files.
type Handler struct {
	store *Store
	log   *slog.Logger
}

func NewHandler(store *Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

// Proxy streams a remote media URL through the size and content-type
// guards: GET /api/v1/media/proxy?url=...
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		http.Error(w, "url parameter is required", http.StatusBadRequest)
		return
	}
	data, contentType, err := Fetch(r.Context(), url)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooLarge):
			http.Error(w, "remote media too large", http.StatusBadGateway)
		case errors.Is(err, ErrBadContentType):
			http.Error(w, "remote content is not media", http.StatusBadGateway)
		default:
			h.log.Warn("proxy fetch failed", "url", url, "error", err)
			http.Error(w, "fetch failed", http.StatusBadGateway)
		}
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// Get streams a local media file by filename: GET /api/v1/media/{filename}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	filename := parts[len(parts)-1]
	if filename == "" || filename == "media" {
		http.Error(w, "missing media identifier", http.StatusBadRequest)
		return
	}

	data, contentType, err := h.store.Read(LocalPrefix + filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "media not found", http.StatusNotFound)
			return
		}
		h.log.Error("read media failed", "filename", filename, "error", err)
		http.Error(w, "read media failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}
