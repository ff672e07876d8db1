// Mutuelle assistant server.
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

	"github.com/ashureev/mutuelle-assistant/internal/agent"
	"github.com/ashureev/mutuelle-assistant/internal/api"
	"github.com/ashureev/mutuelle-assistant/internal/assistant"
	"github.com/ashureev/mutuelle-assistant/internal/config"
	"github.com/ashureev/mutuelle-assistant/internal/identity"
	"github.com/ashureev/mutuelle-assistant/internal/middleware"
	"github.com/ashureev/mutuelle-assistant/internal/store"
	"github.com/ashureev/mutuelle-assistant/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "provider", cfg.Assistant.Provider)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	provider, err := agent.New(startCtx, agent.Config{
		Provider:       cfg.Assistant.Provider,
		ModelName:      cfg.Assistant.ModelName,
		GoogleAPIKey:   cfg.Assistant.GoogleAPIKey,
		GatewayAddr:    cfg.Assistant.GatewayAddr,
		ConnectTimeout: cfg.Assistant.ConnectTimeout,
		Temperature:    float32(cfg.Assistant.Temperature),
	}, logger)
	cancelStart()
	if err != nil {
		slog.Error("Failed to initialize assistant provider", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	service := agent.NewService(provider, conversationLogger)
	defer service.Close()

	reg := assistant.NewRegistry(assistant.NewBuilder(assistant.BuilderConfig{
		Repo:              repo,
		Provider:          service,
		InitTimeout:       cfg.Assistant.InitTimeout,
		SendTimeout:       cfg.Assistant.SendTimeout,
		SuggestionTimeout: cfg.Assistant.SuggestionTimeout,
		Logger:            logger,
	}), logger)
	defer reg.Close()

	verifier := identity.NewVerifier(cfg.JWTSecret)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	conns := api.NewConnections()

	originPatterns := cfg.AllowedOrigins()
	if cfg.IsDevelopment() {
		originPatterns = []string{"*"}
	}
	assistantHandler := api.NewAssistantHandler(reg, limiter, logger)
	streamHandler := api.NewStreamHandler(reg, conns, limiter, originPatterns, logger)

	checks := map[string]api.Checker{"store": repo}
	if hc, ok := provider.(interface{ Health(context.Context) error }); ok {
		checks["provider"] = api.CheckerFunc(hc.Health)
	}
	healthHandler := api.NewHealthHandler(checks)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/*", web.Handler())

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier, cfg.IsDevelopment()))
		assistantHandler.RegisterRoutes(r, streamHandler)
	})

	// Write timeout stays off: sends may wait on the model and streams are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assistant.StartTTLWorker(ctx, reg, cfg.Assistant.IdleTTL, 0, func(userID string) {
		conns.CloseUser(userID)
	})
	limiter.StartSweeper(ctx, time.Minute)

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
