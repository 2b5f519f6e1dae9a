package worker

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
	"github.com/Priya8975/task-event-pipeline/internal/engine"
)

// Outcome is how a delivery was settled.
type Outcome string

const (
	OutcomeAcked    Outcome = "acked"
	OutcomeRequeued Outcome = "requeued"
	OutcomeDropped  Outcome = "dropped"
)

// errUndecodable marks a structurally invalid event body.
var errUndecodable = errors.New("undecodable event")

// Acknowledger settles deliveries with the broker.
type Acknowledger interface {
	Ack(ctx context.Context, d broker.Delivery) error
	Requeue(ctx context.Context, d broker.Delivery) error
}

// NotificationStore persists notifications. CreateNotification reports
// false when a notification with the same idempotency key already exists.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) (bool, error)
}

// IngestConsumer turns domain events into one notification per recipient and
// forwards an enriched event to the gateway queue.
type IngestConsumer struct {
	store        NotificationStore
	forwarder    engine.Publisher
	acker        Acknowledger
	gatewayQueue string
	logger       *slog.Logger
}

func NewIngestConsumer(store NotificationStore, forwarder engine.Publisher, acker Acknowledger, logger *slog.Logger) *IngestConsumer {
	return &IngestConsumer{
		store:        store,
		forwarder:    forwarder,
		acker:        acker,
		gatewayQueue: domain.GatewayQueue,
		logger:       logger,
	}
}

// ingestPlan is everything derived from one event before side effects run.
type ingestPlan struct {
	recipients     []string
	message        string
	metadata       map[string]any
	forwardPattern string
	forward        any
}

// Handle runs one delivery through resolve, persist, forward and settles it:
// ack on success or when there is nobody to notify, requeue when persisting
// or forwarding fails, and drop malformed messages without settling them.
func (c *IngestConsumer) Handle(ctx context.Context, d broker.Delivery) Outcome {
	logger := correlation.Logger(ctx, c.logger).With(
		"message_id", d.ID,
		"pattern", d.Pattern,
		"attempt", d.Attempt,
	)

	if d.Err != nil {
		logger.Error("dropping malformed frame", "error", d.Err)
		return OutcomeDropped
	}

	plan, err := c.plan(ctx, d)
	if err != nil {
		logger.Error("dropping undecodable event", "error", err)
		return OutcomeDropped
	}
	if plan == nil {
		logger.Warn("no notification handler for pattern")
		return c.ack(ctx, d, logger)
	}

	if len(plan.recipients) == 0 {
		logger.Info("event has no recipients, nothing to notify")
		return c.ack(ctx, d, logger)
	}

	if err := c.persist(ctx, d, plan); err != nil {
		logger.Error("failed to persist notifications", "error", err, "recipients", len(plan.recipients))
		return c.requeue(ctx, d, logger)
	}

	if err := c.forward(ctx, plan); err != nil {
		// Notifications are already stored; redelivery is deduplicated by idempotency key.
		logger.Error("failed to forward event", "error", err, "queue", c.gatewayQueue)
		return c.requeue(ctx, d, logger)
	}

	logger.Info("notifications created",
		"recipients", len(plan.recipients),
		"forward_pattern", plan.forwardPattern,
	)
	return c.ack(ctx, d, logger)
}

func (c *IngestConsumer) plan(ctx context.Context, d broker.Delivery) (*ingestPlan, error) {
	switch d.Pattern {
	case domain.PatternTaskCreated, domain.PatternTaskUpdated, domain.PatternTaskDeleted:
		return planTaskEvent(ctx, d)
	case domain.PatternCommentCreated:
		return planCommentEvent(ctx, d)
	}
	return nil, nil
}

type inboundActor struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName"`
}

type inboundTaskEvent struct {
	Task       json.RawMessage `json:"task"`
	Actor      *inboundActor   `json:"actor"`
	Changes    json.RawMessage `json:"changes"`
	Recipients []any           `json:"recipients"`
}

type inboundCommentEvent struct {
	Comment    *domain.Comment `json:"comment"`
	Task       map[string]any  `json:"task"`
	Recipients []any           `json:"recipients"`
}

var taskForwardPatterns = map[string]string{
	domain.PatternTaskCreated: domain.PatternNotifyTaskCreated,
	domain.PatternTaskUpdated: domain.PatternNotifyTaskUpdated,
	domain.PatternTaskDeleted: domain.PatternNotifyTaskDeleted,
}

func planTaskEvent(ctx context.Context, d broker.Delivery) (*ingestPlan, error) {
	var evt inboundTaskEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodable, err)
	}

	var task map[string]any
	if err := json.Unmarshal(evt.Task, &task); err != nil || task == nil {
		return nil, fmt.Errorf("%w: task is not an object", errUndecodable)
	}
	taskID, _ := task["id"].(string)
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("%w: task has no id", errUndecodable)
	}

	var actor *domain.ActorRef
	if evt.Actor != nil && strings.TrimSpace(evt.Actor.ID) != "" {
		actor = &domain.ActorRef{
			ID:          strings.TrimSpace(evt.Actor.ID),
			DisplayName: trimmedName(evt.Actor.DisplayName),
		}
	}

	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	recipients := engine.ResolveTaskRecipients(evt.Recipients, task, actorID)

	var changes json.RawMessage
	if len(evt.Changes) > 0 && string(evt.Changes) != "null" {
		changes = evt.Changes
	}

	title, _ := task["title"].(string)
	var actorName *string
	if actor != nil {
		actorName = actor.DisplayName
	}

	return &ingestPlan{
		recipients:     recipients,
		message:        taskMessage(d.Pattern, actorName, title, changedFields(changes)),
		metadata:       eventMetadata(ctx, d.Pattern, taskID, ""),
		forwardPattern: taskForwardPatterns[d.Pattern],
		forward: domain.TaskForward{
			Task:       evt.Task,
			Recipients: recipients,
			Actor:      actor,
			Changes:    changes,
		},
	}, nil
}

func planCommentEvent(ctx context.Context, d broker.Delivery) (*ingestPlan, error) {
	var evt inboundCommentEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if evt.Comment == nil || strings.TrimSpace(evt.Comment.ID) == "" || strings.TrimSpace(evt.Comment.TaskID) == "" {
		return nil, fmt.Errorf("%w: comment is missing its id or task id", errUndecodable)
	}

	comment := *evt.Comment
	comment.AuthorName = trimmedName(comment.AuthorName)

	recipients := engine.ResolveTaskRecipients(evt.Recipients, evt.Task, comment.AuthorID)
	title, _ := evt.Task["title"].(string)

	return &ingestPlan{
		recipients:     recipients,
		message:        commentMessage(comment.AuthorName, title, comment.Message),
		metadata:       eventMetadata(ctx, d.Pattern, comment.TaskID, comment.ID),
		forwardPattern: domain.PatternNotifyCommentCreated,
		forward: domain.CommentForward{
			Comment:    comment,
			Recipients: recipients,
		},
	}, nil
}

// persist writes one notification per recipient in parallel. It fails if
// any write fails.
func (c *IngestConsumer) persist(ctx context.Context, d broker.Delivery, plan *ingestPlan) error {
	base := eventKey(d.Body)

	g, gctx := errgroup.WithContext(ctx)
	for _, recipient := range plan.recipients {
		n := &domain.Notification{
			RecipientID:    recipient,
			Channel:        domain.ChannelInApp,
			Status:         domain.NotificationPending,
			Message:        plan.message,
			Metadata:       plan.metadata,
			IdempotencyKey: base + ":" + recipient,
		}
		g.Go(func() error {
			created, err := c.store.CreateNotification(gctx, n)
			if err != nil {
				return fmt.Errorf("creating notification for %s: %w", n.RecipientID, err)
			}
			if !created {
				c.logger.Debug("notification already exists", "recipient_id", n.RecipientID)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *IngestConsumer) forward(ctx context.Context, plan *ingestPlan) error {
	body, err := json.Marshal(plan.forward)
	if err != nil {
		return fmt.Errorf("encoding forwarded event: %w", err)
	}
	envelope, requestID, err := correlation.Attach(ctx, body)
	if err != nil {
		return err
	}

	var headers map[string]string
	if requestID != "" {
		headers = map[string]string{correlation.HeaderRequestID: requestID}
	}
	_, err = c.forwarder.Publish(ctx, broker.Message{
		Queue:   c.gatewayQueue,
		Pattern: plan.forwardPattern,
		Body:    envelope,
		Headers: headers,
	})
	return err
}

func (c *IngestConsumer) ack(ctx context.Context, d broker.Delivery, logger *slog.Logger) Outcome {
	if err := c.acker.Ack(ctx, d); err != nil {
		logger.Error("failed to acknowledge message", "error", err)
	}
	return OutcomeAcked
}

func (c *IngestConsumer) requeue(ctx context.Context, d broker.Delivery, logger *slog.Logger) Outcome {
	if err := c.acker.Requeue(ctx, d); err != nil {
		logger.Error("failed to requeue message", "error", err)
	}
	return OutcomeRequeued
}

// eventKey identifies a domain event by its content, so a redelivered copy
// maps to the same notifications.
func eventKey(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:16])
}

func eventMetadata(ctx context.Context, pattern, taskID, commentID string) map[string]any {
	md := map[string]any{
		"event":  pattern,
		"taskId": taskID,
	}
	if commentID != "" {
		md["commentId"] = commentID
	}
	if id := correlation.RequestIDFromContext(ctx); id != "" {
		md[correlation.FieldRequestID] = id
	}
	return md
}

func changedFields(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var changes []struct {
		Field string `json:"field"`
	}
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil
	}
	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.Field != "" {
			fields = append(fields, ch.Field)
		}
	}
	return fields
}
