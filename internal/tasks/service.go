// Package tasks implements task mutations. Every mutation diffs the task
// against its previous state, appends an audit record in the same
// transaction, and emits a domain event after commit.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Priya8975/task-event-pipeline/internal/audit"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/engine"
	"github.com/Priya8975/task-event-pipeline/internal/rpcerror"
)

// TxRepository is the set of writes available inside a transaction.
type TxRepository interface {
	audit.Repository
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	LockTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	InsertComment(ctx context.Context, c *domain.Comment) error
}

// Repository reads tasks and opens transactions.
type Repository interface {
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, status string, limit int) ([]domain.Task, error)
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	ListAuditRecords(ctx context.Context, taskID string, limit int) ([]domain.AuditRecord, error)
}

// EventSink receives domain events after a mutation commits.
type EventSink interface {
	Emit(ctx context.Context, pattern string, payload any)
}

var (
	validStatuses = map[domain.TaskStatus]bool{
		domain.TaskStatusTodo:       true,
		domain.TaskStatusInProgress: true,
		domain.TaskStatusReview:     true,
		domain.TaskStatusDone:       true,
	}
	validPriorities = map[domain.TaskPriority]bool{
		domain.TaskPriorityLow:    true,
		domain.TaskPriorityMedium: true,
		domain.TaskPriorityHigh:   true,
		domain.TaskPriorityUrgent: true,
	}
)

func errTaskNotFound() *rpcerror.HTTPError {
	return rpcerror.NotFound("Task not found", "TASK_NOT_FOUND")
}

type CreateInput struct {
	Title       string
	Description *string
	Status      domain.TaskStatus
	Priority    domain.TaskPriority
	DueDate     *time.Time
	Assignees   []domain.Assignee
}

// UpdateInput holds the fields to change; nil fields are left as they are.
// An empty Description clears it, as does ClearDueDate for the due date.
type UpdateInput struct {
	Title        *string
	Description  *string
	Status       *domain.TaskStatus
	Priority     *domain.TaskPriority
	DueDate      *time.Time
	ClearDueDate bool
	Assignees    *[]domain.Assignee
}

type Service struct {
	repo   Repository
	audit  *audit.Writer
	events EventSink
	logger *slog.Logger
}

func NewService(repo Repository, writer *audit.Writer, events EventSink, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  writer,
		events: events,
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.Task, error) {
	task := &domain.Task{
		Title:       strings.TrimSpace(in.Title),
		Description: normalizeDescription(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		Assignees:   normalizeAssignees(in.Assignees),
		CreatedBy:   strings.TrimSpace(actor.ID),
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	if err := validate(task); err != nil {
		return nil, err
	}

	err := s.repo.InTx(ctx, func(tx TxRepository) error {
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		// A creation has no previous state to diff against.
		_, err := s.audit.Append(ctx, tx, audit.Entry{
			TaskID: task.ID,
			Action: domain.AuditActionCreated,
			Actor:  &actor,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	correlation.Logger(ctx, s.logger).Info("task created", "task_id", task.ID)
	s.events.Emit(ctx, domain.PatternTaskCreated, taskEvent(task, actor, nil, task.AssigneeIDs()))
	return task, nil
}

// Update applies in to the task. An update that changes nothing is still
// audited but emits no event.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, in UpdateInput) (*domain.Task, error) {
	var (
		task       *domain.Task
		changes    []domain.ChangeRecord
		recipients []string
	)
	err := s.repo.InTx(ctx, func(tx TxRepository) error {
		var err error
		task, err = tx.LockTask(ctx, id)
		if err != nil {
			return err
		}
		if task == nil {
			return errTaskNotFound()
		}

		previous := task.Snapshot()
		previousIDs := task.AssigneeIDs()
		apply(task, in)
		if err := validate(task); err != nil {
			return err
		}

		changes = engine.Diff(previous, task.Snapshot())
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, tx, audit.Entry{
			TaskID:  task.ID,
			Action:  domain.AuditActionUpdated,
			Actor:   &actor,
			Changes: changes,
		}); err != nil {
			return err
		}

		recipients = engine.ResolveRecipients(toAny(append(previousIDs, task.AssigneeIDs()...)))
		return nil
	})
	if err != nil {
		return nil, wrapUnlessHTTP("updating task", err)
	}

	logger := correlation.Logger(ctx, s.logger)
	if len(changes) == 0 {
		logger.Debug("task update changed nothing", "task_id", task.ID)
		return task, nil
	}
	logger.Info("task updated", "task_id", task.ID, "changes", len(changes))
	s.events.Emit(ctx, domain.PatternTaskUpdated, taskEvent(task, actor, changes, recipients))
	return task, nil
}

func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) error {
	var task *domain.Task
	err := s.repo.InTx(ctx, func(tx TxRepository) error {
		var err error
		task, err = tx.LockTask(ctx, id)
		if err != nil {
			return err
		}
		if task == nil {
			return errTaskNotFound()
		}
		if err := tx.DeleteTask(ctx, id); err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, tx, audit.Entry{
			TaskID: task.ID,
			Action: domain.AuditActionDeleted,
			Actor:  &actor,
		})
		return err
	})
	if err != nil {
		return wrapUnlessHTTP("deleting task", err)
	}

	correlation.Logger(ctx, s.logger).Info("task deleted", "task_id", task.ID)
	s.events.Emit(ctx, domain.PatternTaskDeleted, taskEvent(task, actor, nil, task.AssigneeIDs()))
	return nil
}

// AddComment stores a comment on a task and notifies its assignees.
func (s *Service) AddComment(ctx context.Context, actor domain.Actor, taskID, message string) (*domain.Comment, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, rpcerror.BadRequest("Comment message is required", "COMMENT_MESSAGE_REQUIRED")
	}
	authorID := strings.TrimSpace(actor.ID)
	if authorID == "" {
		return nil, rpcerror.Unauthorized("Authentication required", "UNAUTHENTICATED")
	}

	var task *domain.Task
	comment := &domain.Comment{
		TaskID:     taskID,
		AuthorID:   authorID,
		AuthorName: audit.DisplayName(&actor),
		Message:    message,
	}
	err := s.repo.InTx(ctx, func(tx TxRepository) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return errTaskNotFound()
		}
		return tx.InsertComment(ctx, comment)
	})
	if err != nil {
		return nil, wrapUnlessHTTP("adding comment", err)
	}

	payload := domain.NewTaskPayload(task)
	correlation.Logger(ctx, s.logger).Info("comment created", "task_id", task.ID, "comment_id", comment.ID)
	s.events.Emit(ctx, domain.PatternCommentCreated, domain.CommentEvent{
		Comment:    *comment,
		Task:       &payload,
		Recipients: task.AssigneeIDs(),
	})
	return comment, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	if task == nil {
		return nil, errTaskNotFound()
	}
	return task, nil
}

func (s *Service) List(ctx context.Context, status string, limit int) ([]domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (s *Service) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

// History returns the audit trail of a task. The trail of a deleted task
// remains readable.
func (s *Service) History(ctx context.Context, taskID string, limit int) ([]domain.AuditRecord, error) {
	records, err := s.repo.ListAuditRecords(ctx, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	if len(records) == 0 {
		if _, err := s.Get(ctx, taskID); err != nil {
			return nil, err
		}
		return []domain.AuditRecord{}, nil
	}
	return records, nil
}

func apply(t *domain.Task, in UpdateInput) {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = normalizeDescription(in.Description)
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.ClearDueDate {
		t.DueDate = nil
	} else if in.DueDate != nil {
		d := *in.DueDate
		t.DueDate = &d
	}
	if in.Assignees != nil {
		t.Assignees = normalizeAssignees(*in.Assignees)
	}
}

func validate(t *domain.Task) error {
	if t.Title == "" {
		return rpcerror.BadRequest("Title is required", "TITLE_REQUIRED")
	}
	if !validStatuses[t.Status] {
		return rpcerror.BadRequest(fmt.Sprintf("Invalid status %q", t.Status), "INVALID_STATUS")
	}
	if !validPriorities[t.Priority] {
		return rpcerror.BadRequest(fmt.Sprintf("Invalid priority %q", t.Priority), "INVALID_PRIORITY")
	}
	return nil
}

func normalizeDescription(d *string) *string {
	if d == nil {
		return nil
	}
	s := strings.TrimSpace(*d)
	if s == "" {
		return nil
	}
	return &s
}

// normalizeAssignees trims ids and drops blank or repeated ones.
func normalizeAssignees(in []domain.Assignee) []domain.Assignee {
	out := make([]domain.Assignee, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		a.Name = strings.TrimSpace(a.Name)
		a.Email = strings.TrimSpace(a.Email)
		out = append(out, a)
	}
	return out
}

func taskEvent(t *domain.Task, actor domain.Actor, changes []domain.ChangeRecord, recipients []string) domain.TaskEvent {
	evt := domain.TaskEvent{
		Task:       domain.NewTaskPayload(t),
		Changes:    changes,
		Recipients: recipients,
	}
	if evt.Recipients == nil {
		evt.Recipients = []string{}
	}
	if id := strings.TrimSpace(actor.ID); id != "" {
		evt.Actor = &domain.ActorRef{ID: id, DisplayName: audit.DisplayName(&actor)}
	}
	return evt
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// wrapUnlessHTTP keeps HTTP-shaped errors as they are so they reach the
// client unchanged.
func wrapUnlessHTTP(op string, err error) error {
	if _, ok := err.(*rpcerror.HTTPError); ok {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
