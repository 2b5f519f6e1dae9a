package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Priya8975/task-event-pipeline/internal/api"
	"github.com/Priya8975/task-event-pipeline/internal/audit"
	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/config"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/engine"
	"github.com/Priya8975/task-event-pipeline/internal/ratelimit"
	"github.com/Priya8975/task-event-pipeline/internal/store"
	"github.com/Priya8975/task-event-pipeline/internal/tasks"
)

func main() {
	configDir := pflag.String("config", ".", "directory containing config.yaml")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configDir)
	if err == nil {
		err = cfg.RequireDatabase()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logger.With("service", cfg.ServiceName)

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, cfg.ConsumerName)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	b := broker.New(redisStore.Client(), logger)
	emitter := engine.NewEmitter(b, nil, logger)
	service := tasks.NewService(tasks.NewPostgresRepository(pgStore), audit.NewWriter(logger), emitter, logger)

	router := api.NewRouter(api.Dependencies{
		Tasks:         service,
		Notifications: pgStore,
		Metrics:       pgStore,
		Queues:        b,
		Emitter:       emitter,
		Limiter:       ratelimit.New(redisStore.Client(), cfg.RateLimit, cfg.RateWindow, logger),
		WatchedQueues: []string{domain.TasksEventsQueue, domain.GatewayQueue},
		HealthChecks: map[string]api.HealthCheck{
			"postgres": pgStore.Ping,
			"redis":    redisStore.Ping,
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight event emissions reach the broker before Redis closes.
	emitter.Wait()
	logger.Info("server stopped", "emitter", emitter.Stats())
}
