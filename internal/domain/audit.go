package domain

import (
	"time"
)

type AuditAction string

const (
	AuditActionCreated AuditAction = "created"
	AuditActionUpdated AuditAction = "updated"
	AuditActionDeleted AuditAction = "deleted"
)

// ChangeRecord describes one differing field between two task snapshots.
// Values are normalized: dates as ISO-8601 strings, collections sorted.
type ChangeRecord struct {
	Field         string `json:"field"`
	PreviousValue any    `json:"previousValue"`
	CurrentValue  any    `json:"currentValue"`
}

// AuditRecord is an append-only history entry for one task mutation.
// Changes is nil (serialized as null) when there is nothing to report.
type AuditRecord struct {
	ID               string         `json:"id"`
	TaskID           string         `json:"taskId"`
	Action           AuditAction    `json:"action"`
	ActorID          *string        `json:"actorId"`
	ActorDisplayName *string        `json:"actorDisplayName"`
	Changes          []ChangeRecord `json:"changes"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"createdAt"`
}
