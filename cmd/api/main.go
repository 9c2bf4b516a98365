package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/flowchat/internal/config"
	"github.com/zhouzirui/flowchat/internal/handler"
	"github.com/zhouzirui/flowchat/internal/handler/live"
	"github.com/zhouzirui/flowchat/internal/model/persona"
	"github.com/zhouzirui/flowchat/internal/service/ai"
	"github.com/zhouzirui/flowchat/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, using process environment only", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			slog.Error("configuration error: "+cfgErr.Message, "key", cfgErr.Key)
		} else {
			slog.Error("failed to load configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	aiService, err := ai.NewServiceFromConfig(ctx, cfg.Agent, logger)
	if err != nil {
		logger.Error("failed to initialize agent backend", "backend", cfg.Agent.Backend, "error", err)
		os.Exit(1)
	}
	logger.Info("agent backend ready",
		"backend", cfg.Agent.Backend,
		"endpoint", cfg.Agent.Endpoint,
		"timeout", cfg.Agent.Timeout,
		"shape", cfg.Agent.Strategy,
		"fallback", cfg.Agent.Fallback)

	personaStore := persona.NewMemoryStore(persona.Seed())
	hub := live.NewHub(logger)
	registry := chat.NewRegistry(personaStore, hub)
	chatService := chat.NewService(aiService, personaStore, logger)

	go pruneIdle(ctx, registry, cfg.UI.SessionTTL, logger)

	router := handler.NewRouter(handler.Dependencies{
		Personas:   personaStore,
		Registry:   registry,
		ChatSvc:    chatService,
		Hub:        hub,
		CookieName: cfg.UI.CookieName,
		Logger:     logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func pruneIdle(ctx context.Context, registry *chat.Registry, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}

	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := registry.Prune(ttl); removed > 0 {
				logger.Info("pruned idle ui sessions", "removed", removed, "remaining", registry.Len())
			}
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("flowchat listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
