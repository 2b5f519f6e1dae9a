package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/Priya8975/task-event-pipeline/internal/correlation"
)

// Dependencies are the collaborators the HTTP API is built from.
type Dependencies struct {
	Tasks         TaskService
	Notifications NotificationStore
	Metrics       MetricsSource
	Queues        QueueInspector
	Emitter       EmitterStats
	Limiter       RateLimiter
	WatchedQueues []string
	HealthChecks  map[string]HealthCheck
	Logger        *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(newCORS().Handler)

	taskHandler := NewTaskHandler(deps.Tasks, deps.Logger)
	notificationHandler := NewNotificationHandler(deps.Notifications, deps.Logger)
	dashHandler := NewDashboardHandler(deps.Metrics, deps.Queues, deps.Emitter, deps.WatchedQueues, deps.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(deps.HealthChecks))

		r.Route("/tasks", func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(limitMutations(deps.Limiter))
			}
			r.Post("/", taskHandler.Create)
			r.Get("/", taskHandler.List)
			r.Get("/{id}", taskHandler.Get)
			r.Patch("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
			r.Get("/{id}/comments", taskHandler.Comments)
			r.Post("/{id}/comments", taskHandler.AddComment)
			r.Get("/{id}/history", taskHandler.History)
		})

		r.Get("/users/{recipientID}/notifications", notificationHandler.List)
		r.Post("/notifications/{id}/sent", notificationHandler.MarkSent)

		r.Get("/metrics", dashHandler.Metrics)
	})

	return r
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Content-Type", "Authorization", "X-Request-Id",
			headerUserID, headerUserName, headerUserEmail,
		},
		ExposedHeaders: []string{"X-Request-Id"},
	})
}
