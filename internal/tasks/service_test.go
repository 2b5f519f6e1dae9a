package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/task-event-pipeline/internal/audit"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/rpcerror"
)

// memoryRepo is a transactional in-memory Repository. A failing
// transaction leaves no trace.
type memoryRepo struct {
	mu         sync.Mutex
	tasks      map[string]domain.Task
	comments   []domain.Comment
	audits     []domain.AuditRecord
	seq        int
	failAudits bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tasks: make(map[string]domain.Task)}
}

type memoryTx struct {
	repo     *memoryRepo
	tasks    map[string]domain.Task
	comments []domain.Comment
	audits   []domain.AuditRecord
}

func (r *memoryRepo) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{repo: r, tasks: make(map[string]domain.Task, len(r.tasks))}
	for k, v := range r.tasks {
		tx.tasks[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	r.tasks = tx.tasks
	r.comments = append(r.comments, tx.comments...)
	r.audits = append(r.audits, tx.audits...)
	return nil
}

func (r *memoryRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memoryRepo) GetTask(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memoryRepo) ListTasks(_ context.Context, status string, _ int) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Task
	for _, t := range r.tasks {
		if status == "" || string(t.Status) == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListComments(_ context.Context, taskID string) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Comment
	for _, c := range r.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAuditRecords(_ context.Context, taskID string, _ int) ([]domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditRecord
	for _, a := range r.audits {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetTask(_ context.Context, id string) (*domain.Task, error) {
	t, ok := tx.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (tx *memoryTx) LockTask(ctx context.Context, id string) (*domain.Task, error) {
	return tx.GetTask(ctx, id)
}

func (tx *memoryTx) InsertTask(_ context.Context, t *domain.Task) error {
	t.ID = tx.repo.nextID("task")
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	tx.tasks[t.ID] = *t
	return nil
}

func (tx *memoryTx) UpdateTask(_ context.Context, t *domain.Task) error {
	t.UpdatedAt = time.Now().UTC()
	tx.tasks[t.ID] = *t
	return nil
}

func (tx *memoryTx) DeleteTask(_ context.Context, id string) error {
	delete(tx.tasks, id)
	return nil
}

func (tx *memoryTx) InsertComment(_ context.Context, c *domain.Comment) error {
	c.ID = tx.repo.nextID("comment")
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	tx.comments = append(tx.comments, *c)
	return nil
}

func (tx *memoryTx) InsertAuditRecord(_ context.Context, rec *domain.AuditRecord) error {
	if tx.repo.failAudits {
		return errors.New("audit table unavailable")
	}
	rec.ID = tx.repo.nextID("audit")
	rec.CreatedAt = time.Now().UTC()
	tx.audits = append(tx.audits, *rec)
	return nil
}

type emitted struct {
	ctx     context.Context
	pattern string
	payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []emitted
}

func (s *recordingSink) Emit(ctx context.Context, pattern string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emitted{ctx: ctx, pattern: pattern, payload: payload})
}

func setupService(t *testing.T) (*Service, *memoryRepo, *recordingSink) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := newMemoryRepo()
	sink := &recordingSink{}
	return NewService(repo, audit.NewWriter(logger), sink, logger), repo, sink
}

var ada = domain.Actor{ID: "u1", Name: " Ada ", Email: "ada@example.com"}

func strPtr(s string) *string { return &s }

func requireHTTPStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *rpcerror.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, status, httpErr.Status)
}

func TestCreate(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := correlation.WithRequestID(context.Background(), "req-1")

	task, err := svc.Create(ctx, ada, CreateInput{
		Title:     "  Ship it ",
		Assignees: []domain.Assignee{{ID: "u2"}, {ID: " u2 "}, {ID: ""}, {ID: "u3"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Ship it", task.Title)
	assert.Equal(t, domain.TaskStatusTodo, task.Status)
	assert.Equal(t, domain.TaskPriorityMedium, task.Priority)
	assert.Equal(t, []string{"u2", "u3"}, task.AssigneeIDs())
	assert.Equal(t, "u1", task.CreatedBy)

	require.Len(t, repo.audits, 1)
	rec := repo.audits[0]
	assert.Equal(t, domain.AuditActionCreated, rec.Action)
	assert.Equal(t, "Ada", *rec.ActorDisplayName)
	assert.Equal(t, "req-1", rec.Metadata["requestId"])
	assert.Nil(t, rec.Changes, "creation is audited with null changes")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, domain.PatternTaskCreated, evt.pattern)
	assert.Equal(t, "req-1", correlation.RequestIDFromContext(evt.ctx))
	payload := evt.payload.(domain.TaskEvent)
	assert.Equal(t, []string{"u2", "u3"}, payload.Recipients)
	require.NotNil(t, payload.Actor)
	assert.Equal(t, "u1", payload.Actor.ID)
}

func TestCreate_Validation(t *testing.T) {
	svc, repo, sink := setupService(t)

	_, err := svc.Create(context.Background(), ada, CreateInput{Title: "   "})
	requireHTTPStatus(t, err, http.StatusBadRequest)

	_, err = svc.Create(context.Background(), ada, CreateInput{Title: "x", Status: "BOGUS"})
	requireHTTPStatus(t, err, http.StatusBadRequest)

	assert.Empty(t, repo.tasks)
	assert.Empty(t, sink.events)
}

func TestCreate_AuditFailureRollsBack(t *testing.T) {
	svc, repo, sink := setupService(t)
	repo.failAudits = true

	_, err := svc.Create(context.Background(), ada, CreateInput{Title: "Ship"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit table unavailable")
	assert.Empty(t, repo.tasks, "task must not persist without its audit record")
	assert.Empty(t, sink.events)
}

func TestUpdate_DiffsAndEmits(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, ada, CreateInput{Title: "Ship", Assignees: []domain.Assignee{{ID: "u2"}}})
	require.NoError(t, err)

	status := domain.TaskStatusDone
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	assignees := []domain.Assignee{{ID: "u3"}}
	updated, err := svc.Update(ctx, ada, task.ID, UpdateInput{
		Status:    &status,
		DueDate:   &due,
		Assignees: &assignees,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, updated.Status)

	require.Len(t, repo.audits, 2)
	changes := repo.audits[1].Changes
	require.Len(t, changes, 3)
	assert.Equal(t, "status", changes[0].Field)
	assert.Equal(t, "dueDate", changes[1].Field)
	assert.Equal(t, "2026-05-01T00:00:00.000Z", changes[1].CurrentValue)
	assert.Equal(t, "assignees", changes[2].Field)

	require.Len(t, sink.events, 2)
	evt := sink.events[1].payload.(domain.TaskEvent)
	assert.Equal(t, domain.PatternTaskUpdated, sink.events[1].pattern)
	assert.Equal(t, []string{"u2", "u3"}, evt.Recipients, "removed and added assignees are both notified")
	assert.Len(t, evt.Changes, 3)
}

func TestUpdate_NoChangeIsAuditedButNotEmitted(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, ada, CreateInput{Title: "Ship"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, ada, task.ID, UpdateInput{Title: strPtr(" Ship ")})
	require.NoError(t, err)

	require.Len(t, repo.audits, 2)
	assert.Nil(t, repo.audits[1].Changes)
	assert.Len(t, sink.events, 1)
}

func TestUpdate_ClearFields(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	task, err := svc.Create(ctx, ada, CreateInput{Title: "Ship", Description: strPtr("notes"), DueDate: &due})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, ada, task.ID, UpdateInput{Description: strPtr(""), ClearDueDate: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Description)
	assert.Nil(t, updated.DueDate)

	changes := repo.audits[1].Changes
	require.Len(t, changes, 2)
	assert.Equal(t, "description", changes[0].Field)
	assert.Nil(t, changes[0].CurrentValue)
	assert.Equal(t, "dueDate", changes[1].Field)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, sink := setupService(t)
	_, err := svc.Update(context.Background(), ada, "missing", UpdateInput{Title: strPtr("x")})
	requireHTTPStatus(t, err, http.StatusNotFound)

	result := rpcerror.Normalize(err)
	assert.Equal(t, "TASK_NOT_FOUND", result.Body.Code)
	assert.Empty(t, sink.events)
}

func TestDelete(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, ada, CreateInput{Title: "Ship", Assignees: []domain.Assignee{{ID: "u2"}}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ada, task.ID))
	assert.Empty(t, repo.tasks)

	history, err := svc.History(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.AuditActionDeleted, history[1].Action)
	assert.Nil(t, history[1].Changes)

	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.PatternTaskDeleted, sink.events[1].pattern)

	err = svc.Delete(ctx, ada, task.ID)
	requireHTTPStatus(t, err, http.StatusNotFound)
}

func TestAddComment(t *testing.T) {
	svc, _, sink := setupService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, ada, CreateInput{Title: "Ship", Assignees: []domain.Assignee{{ID: "u2"}}})
	require.NoError(t, err)

	grace := domain.Actor{ID: "u2", Email: " grace@example.com "}
	comment, err := svc.AddComment(ctx, grace, task.ID, "  looks good ")
	require.NoError(t, err)
	assert.Equal(t, "looks good", comment.Message)
	require.NotNil(t, comment.AuthorName)
	assert.Equal(t, "grace@example.com", *comment.AuthorName)

	require.Len(t, sink.events, 2)
	evt := sink.events[1].payload.(domain.CommentEvent)
	assert.Equal(t, domain.PatternCommentCreated, sink.events[1].pattern)
	assert.Equal(t, comment.ID, evt.Comment.ID)
	require.NotNil(t, evt.Task)
	assert.Equal(t, "Ship", evt.Task.Title)
	assert.Equal(t, []string{"u2"}, evt.Recipients)

	comments, err := svc.Comments(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestAddComment_Errors(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.AddComment(ctx, ada, "missing", "hi")
	requireHTTPStatus(t, err, http.StatusNotFound)

	_, err = svc.AddComment(ctx, ada, "missing", "  ")
	requireHTTPStatus(t, err, http.StatusBadRequest)

	_, err = svc.AddComment(ctx, domain.Actor{}, "missing", "hi")
	requireHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestHistory_UnknownTask(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.History(context.Background(), "missing", 0)
	requireHTTPStatus(t, err, http.StatusNotFound)
}
