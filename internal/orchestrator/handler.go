package orchestrator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sanhub/backend/internal/auth"
	"github.com/sanhub/backend/internal/generations"
	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/provider"
)

type submitRequest struct {
	Prompt string         `json:"prompt"`
	Model  string         `json:"model"`
	Params map[string]any `json:"params"`
	// Image is an optional base64 input reference (image-to-image, remix).
	Image string `json:"image"`
}

type Handler struct {
	orch    *Orchestrator
	authSvc auth.Service
	log     *slog.Logger
}

func NewHandler(orch *Orchestrator, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{orch: orch, authSvc: authSvc, log: log}
}

// SubmitSoraVideo handles POST /api/v1/generate/sora.
func (h *Handler) SubmitSoraVideo(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.TypeSoraVideo)
}

// SubmitSoraImage handles POST /api/v1/generate/sora-image.
func (h *Handler) SubmitSoraImage(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.TypeSoraImage)
}

// SubmitImage handles POST /api/v1/generate/image; the model name picks the
// upstream (zimage models route to zimage, everything else to gemini).
func (h *Handler) SubmitImage(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	t := models.TypeGeminiImage
	if strings.Contains(strings.ToLower(req.Model), "z-image") ||
		strings.Contains(strings.ToLower(req.Model), "zimage") {
		t = models.TypeZImageImage
	}
	h.launch(w, r, identity, req, t)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, t models.GenerationType) {
	identity, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.launch(w, r, identity, req, t)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (auth.Identity, submitRequest, bool) {
	identity, ok := auth.FromRequest(h.authSvc, r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Identity{}, submitRequest{}, false
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return auth.Identity{}, submitRequest{}, false
	}
	return identity, req, true
}

func (h *Handler) launch(w http.ResponseWriter, r *http.Request, identity auth.Identity, req submitRequest, t models.GenerationType) {
	var files []provider.FilePayload
	if req.Image != "" {
		data, err := base64.StdEncoding.DecodeString(stripDataPrefix(req.Image))
		if err != nil {
			http.Error(w, "invalid image payload", http.StatusBadRequest)
			return
		}
		files = append(files, provider.FilePayload{MimeType: "image/jpeg", Data: data})
	}

	gen, err := h.orch.Submit(r.Context(), identity.UserID, SubmitRequest{
		Type:   t,
		Prompt: req.Prompt,
		Model:  req.Model,
		Params: req.Params,
		Files:  files,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrInsufficientBalance):
			http.Error(w, "insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, ErrUnknownUser), errors.Is(err, ErrUserDisabled):
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		default:
			h.log.Error("submit generation failed", "user_id", identity.UserID, "error", err)
			http.Error(w, "submit failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(generations.ToResponse(gen))
}

func stripDataPrefix(s string) string {
	if i := strings.Index(s, ";base64,"); i >= 0 {
		return s[i+len(";base64,"):]
	}
	return s
}
