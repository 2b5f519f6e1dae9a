package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/task-event-pipeline/internal/broker"
)

// Source is the consuming side of the broker.
type Source interface {
	EnsureGroup(ctx context.Context, queue, group string) error
	Read(ctx context.Context, queue, group, consumer string, count int64, block time.Duration) ([]broker.Delivery, error)
	Pending(ctx context.Context, queue, group, consumer, after string, count int64) ([]broker.Delivery, error)
	Claim(ctx context.Context, queue, group, consumer string, minIdle time.Duration, maxDeliveries, count int64) ([]broker.Delivery, []string, error)
}

// Dispatcher continuously reads a queue through a consumer group and hands
// each delivery to the worker pool.
type Dispatcher struct {
	source       Source
	pool         *Pool
	logger       *slog.Logger
	queue        string
	group        string
	consumer     string
	prefetch     int64
	blockTimeout time.Duration
	retryDelay   time.Duration

	claimMinIdle  time.Duration
	claimInterval time.Duration
	maxDeliveries int64
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Queue        string
	Group        string
	Consumer     string
	Prefetch     int
	BlockTimeout time.Duration

	// ClaimMinIdle is how long an entry may sit unsettled in the group before
	// this consumer takes it over. ClaimInterval is how often it looks.
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration
	// MaxDeliveries caps redelivery of one entry; exhausted entries are
	// acknowledged and logged.
	MaxDeliveries int
}

// NewDispatcher creates a dispatcher that reads at most opts.Prefetch
// messages per batch.
func NewDispatcher(source Source, pool *Pool, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	prefetch := opts.Prefetch
	if prefetch < 1 {
		prefetch = pool.Size()
	}
	block := opts.BlockTimeout
	if block == 0 {
		block = 2 * time.Second
	}
	minIdle := opts.ClaimMinIdle
	if minIdle <= 0 {
		minIdle = 30 * time.Second
	}
	interval := opts.ClaimInterval
	if interval <= 0 {
		interval = minIdle / 2
	}
	maxDeliveries := opts.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &Dispatcher{
		source:       source,
		pool:         pool,
		logger:       logger,
		queue:        opts.Queue,
		group:        opts.Group,
		consumer:     opts.Consumer,
		prefetch:     int64(prefetch),
		blockTimeout: block,
		retryDelay:   time.Second,

		claimMinIdle:  minIdle,
		claimInterval: interval,
		maxDeliveries: int64(maxDeliveries),
	}
}

// Start begins the read loop. It runs until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.source.EnsureGroup(ctx, d.queue, d.group); err != nil {
		return err
	}
	d.logger.Info("dispatcher started",
		"queue", d.queue,
		"group", d.group,
		"consumer", d.consumer,
		"prefetch", d.prefetch,
	)

	d.recoverPending(ctx)
	lastClaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping", "queue", d.queue)
			return nil
		default:
		}

		if time.Since(lastClaim) >= d.claimInterval {
			d.reclaim(ctx)
			lastClaim = time.Now()
		}

		if !d.poll(ctx) {
			// Broker errors are retried after a pause; the connection layer reconnects.
			select {
			case <-ctx.Done():
			case <-time.After(d.retryDelay):
			}
		}
	}
}

// poll reads one batch and dispatches it. It returns false when the read
// failed.
func (d *Dispatcher) poll(ctx context.Context) bool {
	deliveries, err := d.source.Read(ctx, d.queue, d.group, d.consumer, d.prefetch, d.blockTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		d.logger.Error("failed to read from queue", "error", err, "queue", d.queue)
		return false
	}

	for _, delivery := range deliveries {
		if !d.pool.Submit(ctx, delivery) {
			// Undispatched messages stay pending in the group.
			return true
		}
	}
	return true
}

// recoverPending redelivers entries this consumer read but never settled,
// for example before a crash.
func (d *Dispatcher) recoverPending(ctx context.Context) {
	after := "0"
	recovered := 0
	defer func() {
		if recovered > 0 {
			d.logger.Info("recovered pending messages", "queue", d.queue, "count", recovered)
		}
	}()

	for {
		deliveries, err := d.source.Pending(ctx, d.queue, d.group, d.consumer, after, d.prefetch)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("failed to read pending messages", "error", err, "queue", d.queue)
			}
			return
		}
		if len(deliveries) == 0 {
			return
		}
		for _, delivery := range deliveries {
			if !d.pool.Submit(ctx, delivery) {
				return
			}
			after = delivery.ID
			recovered++
		}
	}
}

// reclaim takes over entries left idle by any consumer of the group and
// dispatches them.
func (d *Dispatcher) reclaim(ctx context.Context) {
	deliveries, discarded, err := d.source.Claim(ctx, d.queue, d.group, d.consumer, d.claimMinIdle, d.maxDeliveries, d.prefetch)
	if len(discarded) > 0 {
		d.logger.Warn("discarded messages after max deliveries",
			"queue", d.queue,
			"max_deliveries", d.maxDeliveries,
			"message_ids", discarded,
		)
	}
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("failed to claim idle messages", "error", err, "queue", d.queue)
		}
		return
	}
	if len(deliveries) > 0 {
		d.logger.Info("claimed idle messages", "queue", d.queue, "count", len(deliveries))
	}

	for _, delivery := range deliveries {
		if !d.pool.Submit(ctx, delivery) {
			return
		}
	}
}
