package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Priya8975/task-event-pipeline/internal/rpcerror"
)

// RateLimiter admits or rejects one request for a subject.
type RateLimiter interface {
	Allow(ctx context.Context, subject string) bool
}

// limitMutations throttles write requests per calling user. Reads and
// anonymous requests pass through; the handlers reject the latter.
func limitMutations(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			user := strings.TrimSpace(r.Header.Get(headerUserID))
			if user != "" && !limiter.Allow(r.Context(), user) {
				respondError(w, r, nil, rpcerror.New(http.StatusTooManyRequests, "Too many requests", "RATE_LIMITED"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
