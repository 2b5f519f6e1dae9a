// Package gateway relays forwarded events from the gateway queue to the
// live WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/worker"
)

// Broadcaster pushes an event to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload json.RawMessage)
}

type Consumer struct {
	sink   Broadcaster
	acker  worker.Acknowledger
	logger *slog.Logger
}

func NewConsumer(sink Broadcaster, acker worker.Acknowledger, logger *slog.Logger) *Consumer {
	return &Consumer{sink: sink, acker: acker, logger: logger}
}

// Handle broadcasts one forwarded event under its pattern and acks it.
// Frames that are not valid JSON events are left pending.
func (c *Consumer) Handle(ctx context.Context, d broker.Delivery) worker.Outcome {
	logger := correlation.Logger(ctx, c.logger).With(
		"message_id", d.ID,
		"pattern", d.Pattern,
	)

	if d.Err != nil {
		logger.Error("dropping malformed frame", "error", d.Err)
		return worker.OutcomeDropped
	}
	if !json.Valid(d.Body) {
		logger.Error("dropping event with invalid JSON body")
		return worker.OutcomeDropped
	}

	c.sink.Broadcast(d.Pattern, json.RawMessage(d.Body))

	if err := c.acker.Ack(ctx, d); err != nil {
		logger.Error("failed to acknowledge message", "error", err)
	}
	logger.Debug("event broadcast")
	return worker.OutcomeAcked
}
