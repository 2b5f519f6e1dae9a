package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/task-event-pipeline/internal/engine"
	"github.com/Priya8975/task-event-pipeline/internal/store"
)

// MetricsSource aggregates persisted pipeline statistics.
type MetricsSource interface {
	GetPipelineMetrics(ctx context.Context) (*store.PipelineMetrics, error)
}

// QueueInspector reports how many entries a queue holds.
type QueueInspector interface {
	Depth(ctx context.Context, queue string) (int64, error)
}

// EmitterStats exposes the event emitter's counters.
type EmitterStats interface {
	Stats() engine.EmitterStats
}

type DashboardHandler struct {
	store   MetricsSource
	queues  QueueInspector
	emitter EmitterStats
	watched []string
	logger  *slog.Logger
}

func NewDashboardHandler(s MetricsSource, queues QueueInspector, emitter EmitterStats, watched []string, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{store: s, queues: queues, emitter: emitter, watched: watched, logger: logger}
}

// Metrics returns aggregated pipeline metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetPipelineMetrics(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	depths := make(map[string]int64, len(h.watched))
	for _, queue := range h.watched {
		depth, err := h.queues.Depth(r.Context(), queue)
		if err != nil {
			h.logger.Warn("failed to read queue depth", "queue", queue, "error", err)
			depth = 0
		}
		depths[queue] = depth
	}

	type metricsResponse struct {
		store.PipelineMetrics
		QueueDepth map[string]int64    `json:"queue_depth"`
		Emitter    engine.EmitterStats `json:"emitter"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		PipelineMetrics: *metrics,
		QueueDepth:      depths,
		Emitter:         h.emitter.Stats(),
	})
}
