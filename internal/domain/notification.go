package domain

import (
	"time"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

const ChannelInApp = "in_app"

type Notification struct {
	ID             string             `json:"id"`
	RecipientID    string             `json:"recipientId"`
	Channel        string             `json:"channel"`
	Status         NotificationStatus `json:"status"`
	Message        string             `json:"message"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	IdempotencyKey string             `json:"-"`
	CreatedAt      time.Time          `json:"createdAt"`
	SentAt         *time.Time         `json:"sentAt,omitempty"`
}
