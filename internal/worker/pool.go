package worker

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Priya8975/task-event-pipeline/internal/broker"
	"github.com/Priya8975/task-event-pipeline/internal/correlation"
)

// Handler processes one delivery and settles it with the broker.
type Handler interface {
	Handle(ctx context.Context, d broker.Delivery) Outcome
}

// Pool manages a fixed number of worker goroutines that process deliveries.
// The number of workers is the prefetch limit, so at most that many messages
// are in flight at once.
type Pool struct {
	numWorkers int
	jobs       chan broker.Delivery
	handler    Handler
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, handler Handler, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan broker.Delivery),
		handler:    handler,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a delivery to a free worker, blocking until one is available
// or ctx is done. It reports whether the delivery was accepted.
func (p *Pool) Submit(ctx context.Context, d broker.Delivery) bool {
	select {
	case p.jobs <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return p.numWorkers
}

// Stop closes the jobs channel and waits for in-flight deliveries to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for d := range p.jobs {
		// Handling is not interrupted by shutdown; the outcome must reach the broker.
		hctx := scopeFor(context.WithoutCancel(ctx), d)
		outcome := p.handler.Handle(hctx, d)
		correlation.Logger(hctx, p.logger).Debug("delivery handled",
			"worker", id,
			"queue", d.Queue,
			"message_id", d.ID,
			"pattern", d.Pattern,
			"outcome", outcome,
		)
	}
}

// scopeFor opens the correlation scope a delivery was published under: the
// transport header first, then the envelope's requestId.
func scopeFor(ctx context.Context, d broker.Delivery) context.Context {
	id := strings.TrimSpace(d.Headers[correlation.HeaderRequestID])
	if id == "" && d.Err == nil {
		id = correlation.FromPayload(d.Body)
	}
	return correlation.WithRequestID(ctx, id)
}
