// Package admin exposes the operator surface: user management, balance
// grants, fleet-wide generation views, runtime configuration, and chat model
// management. Every route requires the admin role.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sanhub/backend/internal/auth"
	"github.com/sanhub/backend/internal/chat"
	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/generations"
	"github.com/sanhub/backend/internal/ledger"
	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/users"
)

type Handler struct {
	users   *users.Repository
	ledger  ledger.Service
	gens    *generations.Repository
	system  *config.SystemStore
	chat    *chat.Repository
	authSvc auth.Service
	log     *slog.Logger
}

func NewHandler(userRepo *users.Repository, led ledger.Service, gens *generations.Repository,
	system *config.SystemStore, chatRepo *chat.Repository, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		users:   userRepo,
		ledger:  led,
		gens:    gens,
		system:  system,
		chat:    chatRepo,
		authSvc: authSvc,
		log:     log,
	}
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if identity.Role != models.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

type userView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Balance   int64  `json:"balance"`
	Disabled  bool   `json:"disabled"`
	CreatedAt int64  `json:"created_at"`
}

type usersResponse struct {
	Users []userView `json:"users"`
	Total int64      `json:"total"`
}

// ListUsers handles GET /api/v1/admin/users with optional ?search=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	search := r.URL.Query().Get("search")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.users.List(r.Context(), search, limit, offset)
	if err != nil {
		h.log.Error("list users failed", "error", err)
		http.Error(w, "list users failed", http.StatusInternalServerError)
		return
	}
	total, err := h.users.Count(r.Context(), search)
	if err != nil {
		h.log.Error("count users failed", "error", err)
		http.Error(w, "list users failed", http.StatusInternalServerError)
		return
	}
	resp := usersResponse{Users: make([]userView, 0, len(list)), Total: total}
	for _, u := range list {
		resp.Users = append(resp.Users, userView{
			ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role,
			Balance: u.Balance, Disabled: u.Disabled, CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type balanceRequest struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
}

// AdjustBalance handles POST /api/v1/admin/users/balance. Grants and
// reclaims use the clamp policy: a reclaim larger than the balance floors at
// zero instead of failing.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "user_id and delta are required", http.StatusBadRequest)
		return
	}
	balance, err := h.ledger.UpdateBalance(r.Context(), req.UserID, req.Delta, ledger.PolicyClamp)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.log.Error("adjust balance failed", "user_id", req.UserID, "error", err)
		http.Error(w, "adjust balance failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

type disableRequest struct {
	Disabled bool `json:"disabled"`
}

// User handles PATCH /api/v1/admin/users/{id} (disable flag) and DELETE,
// which removes the account.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := parts[len(parts)-1]

	switch r.Method {
	case http.MethodPatch:
		var req disableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if err := h.users.SetDisabled(r.Context(), id, req.Disabled); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				http.Error(w, "user not found", http.StatusNotFound)
				return
			}
			h.log.Error("set user disabled failed", "user_id", id, "error", err)
			http.Error(w, "update user failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := h.users.Delete(r.Context(), id); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				http.Error(w, "user not found", http.StatusNotFound)
				return
			}
			h.log.Error("delete user failed", "user_id", id, "error", err)
			http.Error(w, "delete user failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ListGenerations handles GET /api/v1/admin/generations?status=&limit=&offset=.
func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	status := models.GenerationStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.gens.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		h.log.Error("admin list generations failed", "error", err)
		http.Error(w, "list generations failed", http.StatusInternalServerError)
		return
	}
	resp := make([]generations.Response, 0, len(list))
	for _, g := range list {
		resp = append(resp, generations.ToResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteGeneration handles DELETE /api/v1/admin/generations/{id}.
func (h *Handler) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := parts[len(parts)-1]
	ok, err := h.gens.AdminDelete(r.Context(), id)
	if err != nil {
		h.log.Error("admin delete generation failed", "error", err)
		http.Error(w, "delete generation failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Config handles GET and PUT /api/v1/admin/config.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.system.Get(r.Context())
		if err != nil {
			h.log.Error("get config failed", "error", err)
			http.Error(w, "get config failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var updates map[string]any
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if err := h.system.Update(r.Context(), updates); err != nil {
			h.log.Error("update config failed", "error", err)
			http.Error(w, "update config failed", http.StatusInternalServerError)
			return
		}
		cfg, err := h.system.Get(r.Context())
		if err != nil {
			h.log.Error("get config failed", "error", err)
			http.Error(w, "get config failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type chatModelRequest struct {
	Name           string `json:"name"`
	APIURL         string `json:"api_url"`
	APIKey         string `json:"api_key"`
	ModelID        string `json:"model_id"`
	SupportsVision bool   `json:"supports_vision"`
	MaxTokens      int64  `json:"max_tokens"`
	Enabled        bool   `json:"enabled"`
	CostPerMessage int64  `json:"cost_per_message"`
}

// ChatModels handles GET and POST /api/v1/admin/chat-models.
func (h *Handler) ChatModels(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := h.chat.ListModels(r.Context(), false)
		if err != nil {
			h.log.Error("list chat models failed", "error", err)
			http.Error(w, "list chat models failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req chatModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.APIURL == "" || req.ModelID == "" {
			http.Error(w, "name, api_url and model_id are required", http.StatusBadRequest)
			return
		}
		m := &chat.Model{
			Name:           req.Name,
			APIURL:         req.APIURL,
			APIKey:         req.APIKey,
			ModelID:        req.ModelID,
			SupportsVision: req.SupportsVision,
			MaxTokens:      req.MaxTokens,
			Enabled:        req.Enabled,
			CostPerMessage: req.CostPerMessage,
		}
		if err := h.chat.CreateModel(r.Context(), m); err != nil {
			h.log.Error("create chat model failed", "error", err)
			http.Error(w, "create chat model failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// DeleteChatModel handles DELETE /api/v1/admin/chat-models/{id}.
func (h *Handler) DeleteChatModel(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := parts[len(parts)-1]
	ok, err := h.chat.DeleteModel(r.Context(), id)
	if err != nil {
		h.log.Error("delete chat model failed", "error", err)
		http.Error(w, "delete chat model failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "chat model not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
