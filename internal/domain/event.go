package domain

import (
	"encoding/json"
	"time"
)

// Broker topology. Queue and pattern names are shared with other services
// and must not change.
const (
	AuthQueue          = "auth_queue"
	TasksQueue         = "tasks_queue"
	NotificationsQueue = "notifications_queue"

	TasksEventsQueue = "tasks_events_queue"
	GatewayQueue     = "api_gateway_queue"

	NotificationsGroup = "notifications"
	GatewayGroup       = "gateway"
)

// Domain event patterns published by the tasks service.
const (
	PatternTaskCreated    = "task.created"
	PatternTaskUpdated    = "task.updated"
	PatternTaskDeleted    = "task.deleted"
	PatternCommentCreated = "task.comment.created"
)

// Forwarding patterns on the gateway queue.
const (
	PatternNotifyTaskCreated    = "notification.task.created"
	PatternNotifyTaskUpdated    = "notification.task.updated"
	PatternNotifyTaskDeleted    = "notification.task.deleted"
	PatternNotifyCommentCreated = "notification.comment.created"

	PatternLiveTaskUpdated    = "task.updated"
	PatternLiveCommentCreated = "comment.created"
)

// TaskPayload is the task shape carried inside events.
type TaskPayload struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"dueDate"`
	Assignees   []Assignee   `json:"assignees"`
	CreatedBy   string       `json:"createdBy"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func NewTaskPayload(t *Task) TaskPayload {
	assignees := t.Assignees
	if assignees == nil {
		assignees = []Assignee{}
	}
	return TaskPayload{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		Assignees:   assignees,
		CreatedBy:   t.CreatedBy,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TaskEvent is published for task.created, task.updated and task.deleted.
type TaskEvent struct {
	Task       TaskPayload    `json:"task"`
	Actor      *ActorRef      `json:"actor,omitempty"`
	Changes    []ChangeRecord `json:"changes,omitempty"`
	Recipients []string       `json:"recipients"`
}

// CommentEvent is published for task.comment.created.
type CommentEvent struct {
	Comment    Comment      `json:"comment"`
	Task       *TaskPayload `json:"task,omitempty"`
	Recipients []string     `json:"recipients"`
}

// TaskForward is the enriched task event handed to the gateway.
type TaskForward struct {
	Task       json.RawMessage `json:"task"`
	Recipients []string        `json:"recipients"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
}

// CommentForward is the enriched comment event handed to the gateway.
type CommentForward struct {
	Comment    Comment  `json:"comment"`
	Recipients []string `json:"recipients"`
}
