package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/api"
	"github.com/outline-studio/engine/internal/queue/tasks"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/internal/services"
	"github.com/outline-studio/engine/internal/telemetry"
	"github.com/outline-studio/engine/pkg/config"
	"github.com/outline-studio/engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting outline engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.StoreDriver),
	)

	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "outline-api",
		Environment: cfg.AppEnv,
		Stdout:      cfg.OTelStdout,
	})
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}

	store, _, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()
	log.Info("Store opened successfully")

	// Config validation refuses an empty secret in production.
	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using development default", zap.String("env", cfg.AppEnv))
		jwtSecret = []byte("change-me-in-production-please")
	}

	// The API only enqueues; a missing redis just disables scheduled audits.
	var client *asynq.Client
	if cfg.RedisAddr != "" {
		client = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
	}

	svc := services.New(store, services.Options{MaxDepth: cfg.ProjectionMaxDepth})
	router := api.NewRouter(api.Dependencies{
		HMACSecret: jwtSecret,
		Services:   svc,
		Store:      store,
		Audits:     tasks.NewEnqueuer(client),
		RateLimit:  cfg.RateLimitRPS,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracer shutdown error", zap.Error(err))
	}
}
