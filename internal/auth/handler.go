package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/users"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Balance int64  `json:"balance"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || len(req.Password) < 6 {
		http.Error(w, "email and a password of at least 6 characters are required", http.StatusBadRequest)
		return
	}
	user, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrRegistrationClosed):
			http.Error(w, "registration is closed", http.StatusForbidden)
		case errors.Is(err, users.ErrDuplicateEmail):
			http.Error(w, "email already registered", http.StatusConflict)
		default:
			h.log.Error("register failed", "error", err)
			http.Error(w, "register failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	token, user, err := h.svc.Login(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, ErrAccountDisabled):
			http.Error(w, "account disabled", http.StatusForbidden)
		default:
			h.log.Error("login failed", "error", err)
			http.Error(w, "login failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(user)})
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Balance: u.Balance}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID string
	Role   string
}

// FromRequest resolves the bearer token on r, if any.
func FromRequest(svc Service, r *http.Request) (Identity, bool) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return Identity{}, false
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return Identity{}, false
	}
	userID, role, err := svc.ValidateToken(r.Context(), token)
	if err != nil {
		return Identity{}, false
	}
	return Identity{UserID: userID, Role: role}, true
}
