package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Priya8975/task-event-pipeline/internal/api"
	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/config"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/gateway"
	"github.com/Priya8975/task-event-pipeline/internal/store"
	"github.com/Priya8975/task-event-pipeline/internal/websocket"
	"github.com/Priya8975/task-event-pipeline/internal/worker"
)

func main() {
	configDir := pflag.String("config", ".", "directory containing config.yaml")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logger.With("service", cfg.ServiceName, "consumer", cfg.ConsumerName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, cfg.ConsumerName)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	hub := websocket.NewHub(logger)
	go hub.Run()

	b := broker.New(redisStore.Client(), logger)
	pool := worker.NewPool(cfg.Prefetch, gateway.NewConsumer(hub, b, logger), logger)
	pool.Start(ctx)

	dispatcher := worker.NewDispatcher(b, pool, worker.DispatcherOptions{
		Queue:         domain.GatewayQueue,
		Group:         domain.GatewayGroup,
		Consumer:      cfg.ConsumerName,
		Prefetch:      cfg.Prefetch,
		BlockTimeout:  cfg.BlockTimeout,
		ClaimMinIdle:  cfg.ClaimMinIdle,
		MaxDeliveries: cfg.MaxDeliveries,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(middleware.Recoverer)
	r.Get("/ws", hub.HandleWebSocket)
	r.Get("/api/v1/health", api.HealthHandler(map[string]api.HealthCheck{
		"redis": redisStore.Ping,
	}))

	// No write timeout: WebSocket connections are long-lived.
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Start(gctx)
	})

	go func() {
		logger.Info("gateway starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-gctx.Done():
	}

	logger.Info("shutting down gateway...")
	cancel()
	if err := g.Wait(); err != nil {
		logger.Error("dispatcher stopped with error", "error", err)
	}
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped", "clients", hub.ClientCount())
}
