package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/sanhub/backend/internal/admin"
	"github.com/sanhub/backend/internal/auth"
	"github.com/sanhub/backend/internal/chat"
	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/db"
	"github.com/sanhub/backend/internal/generations"
	"github.com/sanhub/backend/internal/ledger"
	"github.com/sanhub/backend/internal/media"
	"github.com/sanhub/backend/internal/orchestrator"
	"github.com/sanhub/backend/internal/provider"
	"github.com/sanhub/backend/internal/ratelimit"
	"github.com/sanhub/backend/internal/router"
	"github.com/sanhub/backend/internal/users"
)

// hostConfig adapts the system store to the media host's credential lookup.
type hostConfig struct {
	system *config.SystemStore
}

func (h hostConfig) HostCredentials(ctx context.Context) (string, string, error) {
	cfg, err := h.system.Get(ctx)
	if err != nil {
		return "", "", err
	}
	return cfg.PicUIAPIKey, cfg.PicUIBaseURL, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	env := config.LoadEnv()
	ctx := context.Background()

	adapter, err := db.Open(db.Config{
		Driver:        env.DBDriver,
		MySQLDSN:      env.MySQLDSN,
		MySQLPoolSize: env.MySQLPoolSize,
		SQLitePath:    env.SQLitePath,
	})
	if err != nil {
		slog.Error("open database failed", "driver", env.DBDriver, "error", err)
		os.Exit(1)
	}
	defer adapter.Close()

	if err := db.Init(ctx, adapter); err != nil {
		slog.Error("initialize schema failed", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "driver", env.DBDriver)

	system := config.NewSystemStore(adapter)

	userRepo := users.NewRepository(adapter)
	if err := users.Bootstrap(ctx, userRepo, env.AdminEmail, env.AdminPassword); err != nil {
		slog.Error("bootstrap admin failed", "error", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(adapter)
	ledgerSvc := ledger.NewService(ledgerRepo)

	gensRepo := generations.NewRepository(adapter)
	gensSvc := generations.NewService(gensRepo)

	authSvc := auth.NewService(userRepo, system, env.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	store := media.NewStore(env.DataDir, media.NewImageHost(hostConfig{system}), logger)
	mediaHandler := media.NewHandler(store, logger)

	registry := provider.NewRegistry(system.Get)

	orch := orchestrator.New(gensSvc, ledgerSvc, userRepo, registry, store, system, logger)
	generateHandler := orchestrator.NewHandler(orch, authSvc, logger)
	gensHandler := generations.NewHandler(gensSvc, gensRepo, authSvc, store, logger)

	chatRepo := chat.NewRepository(adapter)
	chatSvc := chat.NewService(chatRepo, ledgerSvc, provider.NewChatClient(), logger)
	chatHandler := chat.NewHandler(chatSvc, authSvc, logger)

	adminHandler := admin.NewHandler(userRepo, ledgerSvc, gensRepo, system, chatRepo, authSvc, logger)

	limiter := ratelimit.New()
	defer limiter.Stop()

	handler := router.New(router.Deps{
		Auth:        authHandler,
		Generate:    generateHandler,
		Generations: gensHandler,
		Chat:        chatHandler,
		Media:       mediaHandler,
		Admin:       adminHandler,
		Limiter:     limiter,
		TrustProxy:  env.TrustProxy,
	})

	addr := "0.0.0.0:" + env.Port
	slog.Info("starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
