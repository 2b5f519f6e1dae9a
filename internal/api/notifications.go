package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/rpcerror"
)

// NotificationStore reads and settles in-app notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, recipientID, status string, limit int) ([]domain.Notification, error)
	MarkNotificationSent(ctx context.Context, id string) error
}

type NotificationHandler struct {
	store  NotificationStore
	logger *slog.Logger
}

func NewNotificationHandler(s NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: s, logger: logger}
}

// List returns a recipient's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	recipientID := strings.TrimSpace(chi.URLParam(r, "recipientID"))
	status := strings.ToLower(r.URL.Query().Get("status"))

	notifications, err := h.store.ListNotifications(r.Context(), recipientID, status, parseLimit(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	respondJSON(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, r, h.logger, rpcerror.NotFound("Notification not found", "NOTIFICATION_NOT_FOUND"))
		return
	}

	err := h.store.MarkNotificationSent(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		respondError(w, r, h.logger, rpcerror.NotFound("Notification not found or already sent", "NOTIFICATION_NOT_FOUND"))
		return
	}
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(domain.NotificationSent)})
}
