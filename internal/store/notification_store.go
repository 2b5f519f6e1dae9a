package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

// CreateNotification inserts n unless a notification with the same
// idempotency key exists. It reports whether a row was created; when it was,
// n's ID and CreatedAt are filled in.
func (q *Queries) CreateNotification(ctx context.Context, n *domain.Notification) (bool, error) {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return false, fmt.Errorf("encoding notification metadata: %w", err)
	}

	err = q.db.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, channel, status, message, metadata, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`, n.RecipientID, n.Channel, n.Status, n.Message, metadata, n.IdempotencyKey).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting notification: %w", err)
	}
	return true, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (q *Queries) ListNotifications(ctx context.Context, recipientID, status string, limit int) ([]domain.Notification, error) {
	query := `
		SELECT id, recipient_id, channel, status, message, metadata, created_at, sent_at
		FROM notifications WHERE recipient_id = $1`
	args := []any{recipientID}
	argIdx := 2

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Channel, &n.Status, &n.Message, &metadata, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		if metadata != nil {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata of notification %s: %w", n.ID, err)
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationSent records that a notification reached its recipient.
func (q *Queries) MarkNotificationSent(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE notifications SET status = $2, sent_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, domain.NotificationSent, domain.NotificationPending)
	if err != nil {
		return fmt.Errorf("marking notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("marking notification %s sent: %w", id, pgx.ErrNoRows)
	}
	return nil
}
