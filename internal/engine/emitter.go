package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

// Publisher sends a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg broker.Message) (string, error)
}

// Destination is one queue/pattern pair a logical event is sent to.
type Destination struct {
	Queue   string
	Pattern string
}

// DefaultRoutes sends every domain event to the events queue, and the events
// the gateway renders live to the gateway queue as well.
func DefaultRoutes() map[string][]Destination {
	events := func(p string) Destination { return Destination{Queue: domain.TasksEventsQueue, Pattern: p} }
	return map[string][]Destination{
		domain.PatternTaskCreated: {events(domain.PatternTaskCreated)},
		domain.PatternTaskUpdated: {
			events(domain.PatternTaskUpdated),
			{Queue: domain.GatewayQueue, Pattern: domain.PatternLiveTaskUpdated},
		},
		domain.PatternTaskDeleted: {events(domain.PatternTaskDeleted)},
		domain.PatternCommentCreated: {
			events(domain.PatternCommentCreated),
			{Queue: domain.GatewayQueue, Pattern: domain.PatternLiveCommentCreated},
		},
	}
}

// EmitResult is the outcome of publishing one logical event.
type EmitResult struct {
	Pattern   string
	RequestID string
	Delivered []Destination
	Failed    []Destination
	Err       error
}

func (r EmitResult) OK() bool {
	return r.Err == nil && len(r.Failed) == 0
}

// EmitterStats are cumulative publish counters.
type EmitterStats struct {
	Published      int64 `json:"published"`
	PublishFailed  int64 `json:"publish_failed"`
	EncodeFailures int64 `json:"encode_failures"`
}

// Emitter publishes domain events best-effort. Failures are logged and
// counted; they never reach the caller.
type Emitter struct {
	publisher    Publisher
	routes       map[string][]Destination
	defaultQueue string
	logger       *slog.Logger

	wg             sync.WaitGroup
	published      atomic.Int64
	publishFailed  atomic.Int64
	encodeFailures atomic.Int64
}

func NewEmitter(publisher Publisher, routes map[string][]Destination, logger *slog.Logger) *Emitter {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Emitter{
		publisher:    publisher,
		routes:       routes,
		defaultQueue: domain.TasksEventsQueue,
		logger:       logger,
	}
}

// Emit publishes payload in the background and returns immediately. The
// request scope is kept but the caller's cancellation is not, since the
// mutation has already committed.
func (e *Emitter) Emit(ctx context.Context, pattern string, payload any) {
	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logResult(bg, e.Publish(bg, pattern, payload))
	}()
}

// Publish sends payload to every destination routed for pattern and reports
// the outcome. Each destination receives the same envelope.
func (e *Emitter) Publish(ctx context.Context, pattern string, payload any) EmitResult {
	result := EmitResult{Pattern: pattern}

	body, err := encodePayload(payload)
	if err != nil {
		e.encodeFailures.Add(1)
		result.Err = err
		return result
	}

	envelope, requestID, err := correlation.Attach(ctx, body)
	if err != nil {
		e.encodeFailures.Add(1)
		result.Err = err
		return result
	}
	result.RequestID = requestID

	var headers map[string]string
	if requestID != "" {
		headers = map[string]string{correlation.HeaderRequestID: requestID}
	}

	for _, dest := range e.destinations(pattern) {
		_, err := e.publisher.Publish(ctx, broker.Message{
			Queue:   dest.Queue,
			Pattern: dest.Pattern,
			Body:    envelope,
			Headers: headers,
		})
		if err != nil {
			e.publishFailed.Add(1)
			result.Failed = append(result.Failed, dest)
			if result.Err == nil {
				result.Err = err
			}
			continue
		}
		e.published.Add(1)
		result.Delivered = append(result.Delivered, dest)
	}
	return result
}

// Wait blocks until every background emission has finished.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

func (e *Emitter) Stats() EmitterStats {
	return EmitterStats{
		Published:      e.published.Load(),
		PublishFailed:  e.publishFailed.Load(),
		EncodeFailures: e.encodeFailures.Load(),
	}
}

func (e *Emitter) destinations(pattern string) []Destination {
	if dests, ok := e.routes[pattern]; ok {
		return dests
	}
	return []Destination{{Queue: e.defaultQueue, Pattern: pattern}}
}

func (e *Emitter) logResult(ctx context.Context, r EmitResult) {
	logger := correlation.Logger(ctx, e.logger)
	if r.OK() {
		logger.Debug("event emitted", "pattern", r.Pattern, "destinations", len(r.Delivered))
		return
	}
	logger.Warn("event emission failed",
		"pattern", r.Pattern,
		"delivered", len(r.Delivered),
		"failed", len(r.Failed),
		"error", r.Err,
	)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding event payload: %w", err)
	}
	return body, nil
}
