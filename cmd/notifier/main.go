package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/config"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/store"
	"github.com/Priya8975/task-event-pipeline/internal/worker"
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
	logger = logger.With("service", cfg.ServiceName, "consumer", cfg.ConsumerName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, cfg.ConsumerName)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	b := broker.New(redisStore.Client(), logger)
	consumer := worker.NewIngestConsumer(pgStore, b, b, logger)

	// One worker per prefetch slot bounds the messages in flight.
	pool := worker.NewPool(cfg.Prefetch, consumer, logger)
	pool.Start(ctx)

	dispatcher := worker.NewDispatcher(b, pool, worker.DispatcherOptions{
		Queue:         domain.TasksEventsQueue,
		Group:         domain.NotificationsGroup,
		Consumer:      cfg.ConsumerName,
		Prefetch:      cfg.Prefetch,
		BlockTimeout:  cfg.BlockTimeout,
		ClaimMinIdle:  cfg.ClaimMinIdle,
		MaxDeliveries: cfg.MaxDeliveries,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Start(gctx)
	})

	// Wait for interrupt signal or a fatal dispatcher error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-gctx.Done():
	}

	logger.Info("shutting down notifier...")
	cancel()
	if err := g.Wait(); err != nil {
		logger.Error("dispatcher stopped with error", "error", err)
	}

	// The dispatcher no longer submits, so in-flight deliveries can drain.
	pool.Stop()
	logger.Info("notifier stopped")
}
