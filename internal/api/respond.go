package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/rpcerror"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes err in the normalized error shape. Server-side
// failures are logged and reported with the generic message only.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	result := rpcerror.Normalize(err)

	var httpErr *rpcerror.HTTPError
	if result.StatusCode >= http.StatusInternalServerError && !errors.As(err, &httpErr) {
		correlation.Logger(r.Context(), logger).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		result.Body.Message = rpcerror.DefaultMessage
	}

	respondJSON(w, result.StatusCode, result.Body)
}

// parseLimit reads the limit query parameter, clamped to maxLimit.
func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
