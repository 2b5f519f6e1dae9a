package domain

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

// Assignee is the projection of a user kept on a task.
type Assignee struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"dueDate"`
	Assignees   []Assignee   `json:"assignees"`
	CreatedBy   string       `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// TaskSnapshot captures the diffable fields of a task at one point in time.
// A nil Assignees slice means the field was not loaded.
type TaskSnapshot struct {
	Title       string
	Description *string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	Assignees   []Assignee
}

// Snapshot copies the diffable fields so later mutation of t does not leak
// into the snapshot.
func (t *Task) Snapshot() TaskSnapshot {
	s := TaskSnapshot{
		Title:    t.Title,
		Status:   t.Status,
		Priority: t.Priority,
	}
	if t.Description != nil {
		d := *t.Description
		s.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		s.DueDate = &d
	}
	if t.Assignees != nil {
		s.Assignees = append([]Assignee{}, t.Assignees...)
	}
	return s
}

// AssigneeIDs returns the ids of the task's assignees in stored order.
func (t *Task) AssigneeIDs() []string {
	ids := make([]string, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		ids = append(ids, a.ID)
	}
	return ids
}

type Comment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	AuthorID   string    `json:"authorId"`
	AuthorName *string   `json:"authorName,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Actor identifies the user performing a mutation.
type Actor struct {
	ID    string
	Name  string
	Email string
}

// ActorRef is the wire form of an actor attached to events.
type ActorRef struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName"`
}
