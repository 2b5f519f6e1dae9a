package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/rpcerror"
	"github.com/Priya8975/task-event-pipeline/internal/tasks"
)

// Identity headers set by the auth gateway in front of this service.
const (
	headerUserID    = "X-User-Id"
	headerUserName  = "X-User-Name"
	headerUserEmail = "X-User-Email"
)

// TaskService is the task mutation and query surface.
type TaskService interface {
	Create(ctx context.Context, actor domain.Actor, in tasks.CreateInput) (*domain.Task, error)
	Update(ctx context.Context, actor domain.Actor, id string, in tasks.UpdateInput) (*domain.Task, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
	AddComment(ctx context.Context, actor domain.Actor, taskID, message string) (*domain.Comment, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, status string, limit int) ([]domain.Task, error)
	Comments(ctx context.Context, taskID string) ([]domain.Comment, error)
	History(ctx context.Context, taskID string, limit int) ([]domain.AuditRecord, error)
}

type TaskHandler struct {
	service TaskService
	logger  *slog.Logger
}

func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

type createTaskRequest struct {
	Title       string              `json:"title"`
	Description *string             `json:"description"`
	Status      domain.TaskStatus   `json:"status"`
	Priority    domain.TaskPriority `json:"priority"`
	DueDate     *time.Time          `json:"dueDate"`
	Assignees   []domain.Assignee   `json:"assignees"`
}

// updateTaskRequest is a partial update. dueDate: null clears the due date.
type updateTaskRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Status      *domain.TaskStatus   `json:"status"`
	Priority    *domain.TaskPriority `json:"priority"`
	DueDate     json.RawMessage      `json:"dueDate"`
	Assignees   *[]domain.Assignee   `json:"assignees"`
}

type addCommentRequest struct {
	Message string `json:"message"`
}

func errInvalidBody() *rpcerror.HTTPError {
	return rpcerror.BadRequest("invalid request body", "INVALID_BODY")
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errInvalidBody())
		return
	}

	task, err := h.service.Create(r.Context(), actor, tasks.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		Assignees:   req.Assignees,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(r.URL.Query().Get("status"))

	list, err := h.service.List(r.Context(), status, parseLimit(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errInvalidBody())
		return
	}

	in := tasks.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Assignees:   req.Assignees,
	}
	switch {
	case len(req.DueDate) == 0:
	case bytes.Equal(bytes.TrimSpace(req.DueDate), []byte("null")):
		in.ClearDueDate = true
	default:
		var due time.Time
		if err := json.Unmarshal(req.DueDate, &due); err != nil {
			respondError(w, r, h.logger, rpcerror.BadRequest("dueDate must be an ISO-8601 timestamp", "INVALID_DUE_DATE"))
			return
		}
		in.DueDate = &due
	}

	task, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errInvalidBody())
		return
	}

	comment, err := h.service.AddComment(r.Context(), actor, id, req.Message)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, comment)
}

func (h *TaskHandler) Comments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	comments, err := h.service.Comments(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, comments)
}

// History returns the task's audit trail, oldest first.
func (h *TaskHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	records, err := h.service.History(r.Context(), id, parseLimit(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// actor reads the caller's identity. Mutations require a user id.
func (h *TaskHandler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor := domain.Actor{
		ID:    strings.TrimSpace(r.Header.Get(headerUserID)),
		Name:  r.Header.Get(headerUserName),
		Email: r.Header.Get(headerUserEmail),
	}
	if actor.ID == "" {
		respondError(w, r, h.logger, rpcerror.Unauthorized("Authentication required", "UNAUTHENTICATED"))
		return domain.Actor{}, false
	}
	return actor, true
}

// taskID rejects ids that cannot name a task before they reach the store.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, r, h.logger, rpcerror.NotFound("Task not found", "TASK_NOT_FOUND"))
		return "", false
	}
	return id, true
}
