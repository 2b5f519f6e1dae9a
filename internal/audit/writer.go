// Package audit appends the immutable history entry every task mutation
// must leave behind.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

// Repository persists audit records. InsertAuditRecord fills in the record's
// ID and CreatedAt.
type Repository interface {
	InsertAuditRecord(ctx context.Context, rec *domain.AuditRecord) error
}

// Entry is what a mutation reports to the audit trail.
type Entry struct {
	TaskID   string
	Action   domain.AuditAction
	Actor    *domain.Actor
	Changes  []domain.ChangeRecord
	Metadata map[string]any
}

type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger}
}

// Append stores one audit record through repo. Persistence errors are
// returned so the surrounding mutation fails with them.
func (w *Writer) Append(ctx context.Context, repo Repository, e Entry) (*domain.AuditRecord, error) {
	if e.TaskID == "" {
		return nil, fmt.Errorf("appending audit record: task id is required")
	}

	rec := &domain.AuditRecord{
		TaskID:   e.TaskID,
		Action:   e.Action,
		Metadata: withRequestID(ctx, e.Metadata),
	}
	if len(e.Changes) > 0 {
		rec.Changes = e.Changes
	}
	if e.Actor != nil {
		if id := strings.TrimSpace(e.Actor.ID); id != "" {
			rec.ActorID = &id
		}
		rec.ActorDisplayName = DisplayName(e.Actor)
	}

	if err := repo.InsertAuditRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("appending audit record for task %s: %w", e.TaskID, err)
	}

	correlation.Logger(ctx, w.logger).Debug("audit record appended",
		"task_id", rec.TaskID,
		"action", rec.Action,
		"changes", len(rec.Changes),
	)
	return rec, nil
}

// DisplayName prefers the actor's trimmed name, then trimmed email.
func DisplayName(a *domain.Actor) *string {
	if a == nil {
		return nil
	}
	for _, candidate := range []string{a.Name, a.Email} {
		if s := strings.TrimSpace(candidate); s != "" {
			return &s
		}
	}
	return nil
}

func withRequestID(ctx context.Context, metadata map[string]any) map[string]any {
	id := correlation.RequestIDFromContext(ctx)
	if id == "" {
		return metadata
	}
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	if _, ok := out[correlation.FieldRequestID]; !ok {
		out[correlation.FieldRequestID] = id
	}
	return out
}
