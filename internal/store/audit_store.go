package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

// InsertAuditRecord appends rec and fills in its ID and CreatedAt. A nil
// Changes slice is stored as SQL NULL.
func (q *Queries) InsertAuditRecord(ctx context.Context, rec *domain.AuditRecord) error {
	var changes []byte
	if rec.Changes != nil {
		var err error
		if changes, err = json.Marshal(rec.Changes); err != nil {
			return fmt.Errorf("encoding changes: %w", err)
		}
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	err = q.db.QueryRow(ctx, `
		INSERT INTO audit_records (task_id, action, actor_id, actor_display_name, changes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rec.TaskID, rec.Action, rec.ActorID, rec.ActorDisplayName, changes, metadata).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns a task's history, oldest first.
func (q *Queries) ListAuditRecords(ctx context.Context, taskID string, limit int) ([]domain.AuditRecord, error) {
	query := `
		SELECT id, task_id, action, actor_id, actor_display_name, changes, metadata, created_at
		FROM audit_records WHERE task_id = $1
		ORDER BY created_at ASC, id ASC`
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var changes, metadata []byte
		err := rows.Scan(
			&rec.ID, &rec.TaskID, &rec.Action, &rec.ActorID, &rec.ActorDisplayName,
			&changes, &metadata, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if changes != nil {
			if err := json.Unmarshal(changes, &rec.Changes); err != nil {
				return nil, fmt.Errorf("decoding changes of audit record %s: %w", rec.ID, err)
			}
		}
		if metadata != nil {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata of audit record %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
