package store

import (
	"context"
	"fmt"
)

// PipelineMetrics holds aggregated task and notification statistics.
type PipelineMetrics struct {
	TotalTasks           int `json:"total_tasks"`
	AuditRecords         int `json:"audit_records"`
	TotalNotifications   int `json:"total_notifications"`
	PendingNotifications int `json:"pending_notifications"`
	SentNotifications    int `json:"sent_notifications"`
	FailedNotifications  int `json:"failed_notifications"`
}

// GetPipelineMetrics returns aggregated statistics from the database.
func (s *PostgresStore) GetPipelineMetrics(ctx context.Context) (*PipelineMetrics, error) {
	var m PipelineMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'sent') AS sent,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM notifications
	`).Scan(&m.TotalNotifications, &m.PendingNotifications, &m.SentNotifications, &m.FailedNotifications)
	if err != nil {
		return nil, fmt.Errorf("querying notification metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&m.TotalTasks)
	if err != nil {
		return nil, fmt.Errorf("querying total tasks: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&m.AuditRecords)
	if err != nil {
		return nil, fmt.Errorf("querying audit record count: %w", err)
	}

	return &m, nil
}
