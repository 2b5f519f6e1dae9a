package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_NestedScopesRestoreOuter(t *testing.T) {
	var inner, afterInner string

	err := Run(context.Background(), "outer", func(ctx context.Context) error {
		Run(ctx, "inner", func(ctx context.Context) error {
			inner = RequestIDFromContext(ctx)
			return nil
		})
		afterInner = RequestIDFromContext(ctx)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "inner", inner)
	assert.Equal(t, "outer", afterInner)
}

func TestRun_PropagatesError(t *testing.T) {
	want := context.Canceled
	got := Run(context.Background(), "x", func(context.Context) error { return want })
	assert.ErrorIs(t, got, want)
}

func TestCurrent(t *testing.T) {
	_, ok := Current(context.Background())
	assert.False(t, ok)

	ctx := WithRequestID(context.Background(), "  ")
	_, ok = Current(ctx)
	assert.False(t, ok, "blank ids do not open a scope")

	s, ok := Current(WithRequestID(context.Background(), " req-1 "))
	require.True(t, ok)
	assert.Equal(t, "req-1", s.RequestID)
}

func TestScopesSurviveGoroutinesWithoutLeaking(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, id := range []string{"req-1", "req-2"} {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			Run(context.Background(), id, func(ctx context.Context) error {
				done := make(chan string)
				go func() { done <- RequestIDFromContext(ctx) }()
				results[i] = <-done
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"req-1", "req-2"}, results)
}

func TestEnsure(t *testing.T) {
	ctx := WithRequestID(context.Background(), "keep")
	assert.Equal(t, "keep", RequestIDFromContext(Ensure(ctx)))

	fresh := RequestIDFromContext(Ensure(context.Background()))
	assert.Len(t, fresh, 36)
}

func TestPick(t *testing.T) {
	assert.Equal(t, "payload", Pick("payload", "ambient"))
	assert.Equal(t, "ambient", Pick("", "ambient"))
	assert.Equal(t, "ambient", Pick("  ", "ambient"))
	assert.Equal(t, "", Pick("", ""))
}

func TestAttach(t *testing.T) {
	scoped := WithRequestID(context.Background(), "req-1")

	tests := []struct {
		name   string
		ctx    context.Context
		body   string
		want   string
		wantID string
	}{
		{"ambient spliced first", scoped, `{"task":{"id":"t1"},"n":1.50}`, `{"requestId":"req-1","task":{"id":"t1"},"n":1.50}`, "req-1"},
		{"empty object", scoped, `{}`, `{"requestId":"req-1"}`, "req-1"},
		{"payload id kept", scoped, `{"requestId":"req-0","a":1}`, `{"requestId":"req-0","a":1}`, "req-0"},
		{"no ambient no payload", context.Background(), `{"a":1}`, `{"a":1}`, ""},
		{"payload id without ambient", context.Background(), `{"a":1,"requestId":"req-9"}`, `{"a":1,"requestId":"req-9"}`, "req-9"},
		{"padded payload id kept verbatim", scoped, `{"z":1,"requestId":" req-0 ","b":{"y":2,"x":3}}`, `{"z":1,"requestId":" req-0 ","b":{"y":2,"x":3}}`, "req-0"},
		{"non-object untouched", scoped, `[1,2]`, `[1,2]`, "req-1"},
		{"invalid json untouched", scoped, `not json`, `not json`, "req-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, id, err := Attach(tt.ctx, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestAttach_UnusablePayloadField(t *testing.T) {
	scoped := WithRequestID(context.Background(), "req-1")

	out, id, err := Attach(scoped, []byte(`{"z":1,"requestId":null,"b":{"y":2,"x":3},"n":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)
	assert.Equal(t, `{"z":1,"requestId":"req-1","b":{"y":2,"x":3},"n":1.50}`, string(out), "member order and bytes are kept")

	out, id, err = Attach(scoped, []byte(`{"requestId":"  ","a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)
	assert.Equal(t, `{"requestId":"req-1","a":1}`, string(out))

	out, id, err = Attach(context.Background(), []byte(`{"requestId":"","a":1}`))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, `{"requestId":"","a":1}`, string(out))
}

func TestFromPayload(t *testing.T) {
	assert.Equal(t, "req-1", FromPayload([]byte(`{"requestId":" req-1 "}`)))
	assert.Empty(t, FromPayload([]byte(`{"requestId":5}`)))
	assert.Empty(t, FromPayload([]byte(`[]`)))
	assert.Empty(t, FromPayload(nil))
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("inbound header wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req-in")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "req-in", seen)
		assert.Equal(t, "req-in", rec.Header().Get(HeaderRequestID))
	})

	t.Run("chi request id used", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		middleware.RequestID(h).ServeHTTP(rec, req)

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})

	t.Run("generated when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})
}
