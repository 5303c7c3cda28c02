package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sanhub/backend/internal/auth"
)

type sendRequest struct {
	SessionID string `json:"session_id"`
	ModelID   string `json:"model_id"`
	Content   string `json:"content"`
}

type sendResponse struct {
	Session *Session `json:"session"`
	Message *Message `json:"message"`
}

type historyResponse struct {
	Session  *Session   `json:"session"`
	Messages []*Message `json:"messages"`
}

type Handler struct {
	svc     Service
	authSvc auth.Service
	log     *slog.Logger
}

func NewHandler(svc Service, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, authSvc: authSvc, log: log}
}

// Send handles POST /api/v1/generate/chat.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" && req.ModelID == "" {
		http.Error(w, "model_id is required for a new session", http.StatusBadRequest)
		return
	}

	session, message, err := h.svc.SendMessage(r.Context(), identity.UserID, req.SessionID, req.ModelID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			http.Error(w, "insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, ErrModelNotFound):
			http.Error(w, "chat model not found", http.StatusNotFound)
		case errors.Is(err, ErrSessionNotFound):
			http.Error(w, "chat session not found", http.StatusNotFound)
		default:
			h.log.Error("chat send failed", "user_id", identity.UserID, "error", err)
			http.Error(w, "chat failed", http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Session: session, Message: message})
}

// ListModels handles GET /api/v1/chat/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromRequest(h.authSvc, r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	models, err := h.svc.ListModels(r.Context())
	if err != nil {
		h.log.Error("list chat models failed", "error", err)
		http.Error(w, "list models failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// ListSessions handles GET /api/v1/chat/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessions, err := h.svc.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		h.log.Error("list chat sessions failed", "error", err)
		http.Error(w, "list sessions failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Session handles GET and DELETE /api/v1/chat/sessions/{id}.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	sessionID := parts[len(parts)-1]

	switch r.Method {
	case http.MethodGet:
		session, messages, err := h.svc.GetHistory(r.Context(), identity.UserID, sessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				http.Error(w, "chat session not found", http.StatusNotFound)
				return
			}
			h.log.Error("get chat history failed", "error", err)
			http.Error(w, "get history failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{Session: session, Messages: messages})
	case http.MethodDelete:
		if err := h.svc.DeleteSession(r.Context(), identity.UserID, sessionID); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				http.Error(w, "chat session not found", http.StatusNotFound)
				return
			}
			h.log.Error("delete chat session failed", "error", err)
			http.Error(w, "delete session failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
