// Package router wires the HTTP surface under /api/v1 with per-class rate
// limiting on the way in.
package router

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/sanhub/backend/internal/admin"
	"github.com/sanhub/backend/internal/auth"
	"github.com/sanhub/backend/internal/chat"
	"github.com/sanhub/backend/internal/generations"
	"github.com/sanhub/backend/internal/media"
	"github.com/sanhub/backend/internal/orchestrator"
	"github.com/sanhub/backend/internal/ratelimit"
)

type Deps struct {
	Auth        *auth.Handler
	Generate    *orchestrator.Handler
	Generations *generations.Handler
	Chat        *chat.Handler
	Media       *media.Handler
	Admin       *admin.Handler
	Limiter     *ratelimit.Limiter
	TrustProxy  bool
}

// New returns the API handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	limited := func(class ratelimit.Class, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !d.Limiter.Allow(ratelimit.ClientIP(r, d.TrustProxy), class) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc(base+"/auth/register", methodPOST(limited(ratelimit.ClassAuth, d.Auth.Register)))
	mux.HandleFunc(base+"/auth/login", methodPOST(limited(ratelimit.ClassAuth, d.Auth.Login)))

	mux.HandleFunc(base+"/generate/sora", methodPOST(limited(ratelimit.ClassGenerate, d.Generate.SubmitSoraVideo)))
	mux.HandleFunc(base+"/generate/sora-image", methodPOST(limited(ratelimit.ClassGenerate, d.Generate.SubmitSoraImage)))
	mux.HandleFunc(base+"/generate/image", methodPOST(limited(ratelimit.ClassGenerate, d.Generate.SubmitImage)))
	mux.HandleFunc(base+"/generate/chat", methodPOST(limited(ratelimit.ClassChat, d.Chat.Send)))

	mux.HandleFunc(base+"/generations", methodGET(limited(ratelimit.ClassAPI, d.Generations.List)))
	mux.HandleFunc(base+"/generations/delete-batch", methodPOST(limited(ratelimit.ClassAPI, d.Generations.DeleteBatch)))
	mux.HandleFunc(base+"/generations/delete-finished", methodPOST(limited(ratelimit.ClassAPI, d.Generations.DeleteFinished)))
	mux.HandleFunc(base+"/generations/", limited(ratelimit.ClassAPI, d.Generations.Get))

	mux.HandleFunc(base+"/chat/models", methodGET(limited(ratelimit.ClassAPI, d.Chat.ListModels)))
	mux.HandleFunc(base+"/chat/sessions", methodGET(limited(ratelimit.ClassAPI, d.Chat.ListSessions)))
	mux.HandleFunc(base+"/chat/sessions/", limited(ratelimit.ClassAPI, d.Chat.Session))

	mux.HandleFunc(base+"/media/proxy", methodGET(limited(ratelimit.ClassAPI, d.Media.Proxy)))
	mux.HandleFunc(base+"/media/", d.Media.Get)

	mux.HandleFunc(base+"/admin/users", methodGET(limited(ratelimit.ClassAPI, d.Admin.ListUsers)))
	mux.HandleFunc(base+"/admin/users/balance", methodPOST(limited(ratelimit.ClassAPI, d.Admin.AdjustBalance)))
	mux.HandleFunc(base+"/admin/users/", limited(ratelimit.ClassAPI, d.Admin.User))
	mux.HandleFunc(base+"/admin/generations", methodGET(limited(ratelimit.ClassAPI, d.Admin.ListGenerations)))
	mux.HandleFunc(base+"/admin/generations/", methodDELETE(limited(ratelimit.ClassAPI, d.Admin.DeleteGeneration)))
	mux.HandleFunc(base+"/admin/config", limited(ratelimit.ClassAPI, d.Admin.Config))
	mux.HandleFunc(base+"/admin/chat-models", limited(ratelimit.ClassAPI, d.Admin.ChatModels))
	mux.HandleFunc(base+"/admin/chat-models/", methodDELETE(limited(ratelimit.ClassAPI, d.Admin.DeleteChatModel)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodDELETE(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
