package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

const taskColumns = `id, title, description, status, priority, due_date, assignees, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var assignees []byte
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueDate, &assignees, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(assignees, &t.Assignees); err != nil {
		return nil, fmt.Errorf("decoding assignees of task %s: %w", t.ID, err)
	}
	return &t, nil
}

func encodeAssignees(a []domain.Assignee) ([]byte, error) {
	if a == nil {
		a = []domain.Assignee{}
	}
	return json.Marshal(a)
}

// InsertTask stores t and fills in its ID and timestamps.
func (q *Queries) InsertTask(ctx context.Context, t *domain.Task) error {
	assignees, err := encodeAssignees(t.Assignees)
	if err != nil {
		return fmt.Errorf("encoding assignees: %w", err)
	}

	err = q.db.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, priority, due_date, assignees, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, t.Title, t.Description, t.Status, t.Priority, t.DueDate, assignees, t.CreatedBy).Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (q *Queries) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := scanTask(q.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// LockTask loads a task and holds a row lock on it until the transaction
// ends, so concurrent mutations diff against the committed state.
func (q *Queries) LockTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := scanTask(q.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("locking task: %w", err)
	}
	return t, nil
}

// UpdateTask writes the mutable fields of t and refreshes UpdatedAt.
func (q *Queries) UpdateTask(ctx context.Context, t *domain.Task) error {
	assignees, err := encodeAssignees(t.Assignees)
	if err != nil {
		return fmt.Errorf("encoding assignees: %w", err)
	}

	err = q.db.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5,
			due_date = $6, assignees = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, assignees).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return nil
}

func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting task %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// ListTasks returns the most recently updated tasks first.
func (q *Queries) ListTasks(ctx context.Context, status string, limit int) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	query += " ORDER BY updated_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// InsertComment stores c and fills in its ID and timestamps.
func (q *Queries) InsertComment(ctx context.Context, c *domain.Comment) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO comments (task_id, author_id, author_name, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, c.TaskID, c.AuthorID, c.AuthorName, c.Message).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

func (q *Queries) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, task_id, author_id, author_name, message, created_at, updated_at
		FROM comments WHERE task_id = $1
		ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorName, &c.Message, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
