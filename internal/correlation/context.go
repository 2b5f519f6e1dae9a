// Package correlation carries a request id through everything running
// underneath an inbound request or broker message.
//
// The scope lives on context.Context, so it follows the goroutine tree that
// receives the context: nested scopes shadow outer ones for their subtree
// only, and concurrent handlers never observe each other's id.
package correlation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// HeaderRequestID is the transport metadata key mirroring an envelope's
// requestId field.
const HeaderRequestID = "x-request-id"

// FieldRequestID is the envelope field name.
const FieldRequestID = "requestId"

type contextKey string

const scopeKey contextKey = "correlationScope"

// Scope is the active correlation context.
type Scope struct {
	RequestID string
}

// WithRequestID returns a context with a new scope for id. An empty id
// leaves ctx unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, scopeKey, Scope{RequestID: id})
}

// Current returns the active scope, if any.
func Current(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(scopeKey).(Scope)
	if !ok || s.RequestID == "" {
		return Scope{}, false
	}
	return s, true
}

// RequestIDFromContext returns the ambient request id or "".
func RequestIDFromContext(ctx context.Context) string {
	s, _ := Current(ctx)
	return s.RequestID
}

// Run executes fn with id active for fn and everything it calls.
func Run(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	return fn(WithRequestID(ctx, id))
}

// Ensure returns ctx unchanged if it already has a scope, otherwise a
// context scoped to a freshly generated id.
func Ensure(ctx context.Context) context.Context {
	if _, ok := Current(ctx); ok {
		return ctx
	}
	return WithRequestID(ctx, NewRequestID())
}

func NewRequestID() string {
	return uuid.NewString()
}

// Logger attaches the ambient request id to logger.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
