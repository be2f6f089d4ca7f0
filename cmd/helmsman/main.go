// Command helmsman runs the Helmsman core service: the REST API, the
// observer WebSocket hub and the per-conversation transport relay in front
// of the agent session orchestrator.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	hmhttp "github.com/helmsman-dev/helmsman/internal/adapter/http"
	hmnats "github.com/helmsman-dev/helmsman/internal/adapter/nats"
	"github.com/helmsman-dev/helmsman/internal/adapter/natsengine"
	"github.com/helmsman-dev/helmsman/internal/adapter/otel"
	"github.com/helmsman-dev/helmsman/internal/adapter/postgres"
	"github.com/helmsman-dev/helmsman/internal/adapter/relay"
	"github.com/helmsman-dev/helmsman/internal/adapter/ristretto"
	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
	"github.com/helmsman-dev/helmsman/internal/config"
	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/logger"
	"github.com/helmsman-dev/helmsman/internal/resilience"
	"github.com/helmsman-dev/helmsman/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"global_max", cfg.Agent.GlobalMax,
		"per_project_max", cfg.Agent.PerProjectMax,
	)

	ctx := context.Background()

	shutdownTracer := otel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := hmnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	promptCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer promptCache.Close()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---

	store := postgres.NewStore(pool)
	hub := ws.NewHub()
	engine := natsengine.New(queue)

	limits := session.Limits{
		GlobalMax:  cfg.Agent.GlobalMax,
		PerOwner:   cfg.Agent.PerProjectMax,
		QueueDepth: cfg.Agent.QueueDepth,
	}
	registry := service.NewRegistry(engine, limits, hub, metrics)
	defer registry.Shutdown()

	prompts := service.NewPromptBuilder(store, promptCache, cfg.Cache.PromptTTL)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	progress := service.NewProgressRecorder(store, breaker)

	conversations := relay.New(registry, prompts, progress, metrics, relay.Options{
		HistoryWindow: cfg.Agent.HistoryWindow,
		MaxTurns:      cfg.Agent.MaxTurns,
	})

	// --- HTTP ---

	handlers := hmhttp.NewHandlers(store, registry, prompts, queue)

	r := chi.NewRouter()
	r.Use(hmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(hmhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/ws", hub.HandleWS)
	r.Get("/ws/conversation", conversations.HandleConversation)

	hmhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
