package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/queue/tasks"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/internal/services"
	"github.com/outline-studio/engine/internal/telemetry"
	"github.com/outline-studio/engine/pkg/config"
	"github.com/outline-studio/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	_ = rdb.Close()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "outline-worker",
		Environment: cfg.AppEnv,
		Stdout:      cfg.OTelStdout,
	})
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, _, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Logger:      log.Sugar(),
	})

	svc := services.New(store, services.Options{MaxDepth: cfg.ProjectionMaxDepth})
	handler := tasks.NewAuditTaskHandler(svc.Audit, cfg.AsynqConcurrency)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeTreeAudit, handler.HandleAudit)
	mux.HandleFunc(tasks.TypeAuditAll, handler.HandleAuditAll)

	// Periodic sweep of every tree.
	var scheduler *asynq.Scheduler
	if cfg.AuditInterval > 0 {
		scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: log.Sugar()})
		cronspec := "@every " + cfg.AuditInterval.String()
		if _, err := scheduler.Register(cronspec, asynq.NewTask(tasks.TypeAuditAll, nil)); err != nil {
			log.Fatal("failed to register audit sweep", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
		log.Info("audit sweep scheduled", zap.Duration("interval", cfg.AuditInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("worker stopped with error", zap.Error(err))
	}

	if scheduler != nil {
		scheduler.Shutdown()
	}
	// Allow in-flight tasks to finish gracefully
	srv.Shutdown()
}
