// convogate - conversation gateway for an external agent engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abelikov/convogate/internal/api"
	"github.com/abelikov/convogate/internal/config"
	"github.com/abelikov/convogate/internal/engine"
	"github.com/abelikov/convogate/internal/identity"
	"github.com/abelikov/convogate/internal/middleware"
	"github.com/abelikov/convogate/internal/session"
	"github.com/abelikov/convogate/internal/store"
	"github.com/abelikov/convogate/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"app_name", cfg.AppName,
		"max_conversations", cfg.MaxConversations,
		"engine", cfg.EngineProvider,
		"anthropic_key_set", cfg.AnthropicAPIKey != "",
	)

	// Session store.
	var sessions store.Store
	switch cfg.StoreBackend {
	case "sqlite":
		sqliteStore, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize session store", "error", err)
			os.Exit(1)
		}
		if err := sqliteStore.Ping(context.Background()); err != nil {
			slog.Error("Session store health check failed", "error", err)
			os.Exit(1)
		}
		sessions = sqliteStore
	default:
		sessions = store.NewMemory()
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()
	slog.Info("Session store ready", "backend", cfg.StoreBackend)

	// Registry and engine. The registry doubles as the engine's view of
	// per-conversation auxiliary state.
	registry := session.NewRegistry(cfg.MaxConversations)

	var agentEngine engine.Engine
	switch cfg.EngineProvider {
	case "scripted":
		agentEngine = engine.NewScriptedEngine(
			engine.TextTurn(cfg.AgentName, "It is sunny and 22 degrees out there."),
		)
	default:
		agentEngine = engine.NewAnthropicEngine(engine.AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AgentModel,
			AgentName: cfg.AgentName,
		}, registry)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promRegistry)

	mgr := session.NewManager(session.Config{
		AppName:      cfg.AppName,
		KeyMode:      session.KeyMode(cfg.SessionKeyMode),
		InitialState: cfg.InitialState(),
		Logger:       logger,
		Metrics:      metrics,
	}, registry, sessions, agentEngine)

	handler := api.NewHandler(mgr, api.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow))

	var originPattern *regexp.Regexp
	if cfg.FrontendURLRegex != "" {
		originPattern = regexp.MustCompile(cfg.FrontendURLRegex)
	}

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.FrontendOrigins, originPattern))

	r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		handler.RegisterRoutes(r)
	})

	// SSE connections require long write timeouts, so WriteTimeout stays 0.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
