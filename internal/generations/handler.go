package generations

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sanhub/backend/internal/auth"
	"github.com/sanhub/backend/internal/media"
	"github.com/sanhub/backend/internal/models"
)

// Response is the status surface for one record. ResultURL is rewritten for
// local references so clients always get something fetchable.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Prompt       string         `json:"prompt"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	ResultURL    string         `json:"result_url,omitempty"`
	Cost         int64          `json:"cost"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

type deleteBatchRequest struct {
	IDs []string `json:"ids"`
}

type Handler struct {
	svc     Service
	repo    *Repository
	authSvc auth.Service
	store   *media.Store
	log     *slog.Logger
}

func NewHandler(svc Service, repo *Repository, authSvc auth.Service, store *media.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, repo: repo, authSvc: authSvc, store: store, log: log}
}

// List handles GET /api/v1/generations with optional paging and
// ?active=true for in-flight records only.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var list []*models.Generation
	var err error
	if r.URL.Query().Get("active") == "true" {
		list, err = h.svc.ListActive(r.Context(), identity.UserID, limit)
	} else {
		list, err = h.svc.ListByUser(r.Context(), identity.UserID, limit, offset)
	}
	if err != nil {
		h.log.Error("list generations failed", "error", err)
		http.Error(w, "list generations failed", http.StatusInternalServerError)
		return
	}
	resp := make([]Response, 0, len(list))
	for _, g := range list {
		resp = append(resp, ToResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/generations/{id}; DELETE removes the record.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := parts[len(parts)-1]

	switch r.Method {
	case http.MethodGet:
		gen, err := h.svc.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "generation not found", http.StatusNotFound)
				return
			}
			h.log.Error("get generation failed", "error", err)
			http.Error(w, "get generation failed", http.StatusInternalServerError)
			return
		}
		if gen.UserID != identity.UserID && identity.Role != models.RoleAdmin {
			http.Error(w, "generation not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, ToResponse(gen))
	case http.MethodDelete:
		h.delete(w, r, identity.UserID, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, userID, id string) {
	gen, err := h.svc.Get(r.Context(), id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.log.Error("get generation failed", "error", err)
		http.Error(w, "delete generation failed", http.StatusInternalServerError)
		return
	}
	ok, err := h.repo.Delete(r.Context(), id, userID)
	if err != nil {
		h.log.Error("delete generation failed", "error", err)
		http.Error(w, "delete generation failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}
	if gen != nil && media.IsLocal(gen.ResultURL) {
		h.store.Delete(gen.ResultURL)
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBatch handles POST /api/v1/generations/delete-batch.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req deleteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		http.Error(w, "ids are required", http.StatusBadRequest)
		return
	}
	deleted, err := h.repo.DeleteBatch(r.Context(), req.IDs, identity.UserID)
	if err != nil {
		h.log.Error("delete batch failed", "error", err)
		http.Error(w, "delete batch failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// DeleteFinished handles POST /api/v1/generations/delete-finished.
func (h *Handler) DeleteFinished(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	deleted, err := h.repo.DeleteFinished(r.Context(), identity.UserID)
	if err != nil {
		h.log.Error("delete finished failed", "error", err)
		http.Error(w, "delete finished failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// ToResponse maps a record to its API shape, rewriting local references to
// the media endpoint. Hosted video URLs pass through untouched.
func ToResponse(g *models.Generation) Response {
	resultURL := g.ResultURL
	if media.IsLocal(resultURL) {
		resultURL = "/api/v1/media/" + strings.TrimPrefix(resultURL, media.LocalPrefix)
	}
	progress := 0
	if g.Status == models.StatusCompleted {
		progress = 100
	} else {
		switch v := g.Params["progress"].(type) {
		case float64:
			progress = int(v)
		case int:
			progress = v
		}
	}
	return Response{
		ID:           g.ID,
		Type:         string(g.Type),
		Prompt:       g.Prompt,
		Status:       string(g.Status),
		Progress:     progress,
		ResultURL:    resultURL,
		Cost:         g.Cost,
		ErrorMessage: g.ErrorMessage,
		Params:       g.Params,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
