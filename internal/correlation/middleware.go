package correlation

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware opens a scope for each HTTP request. An inbound X-Request-Id
// header wins, then the id assigned by chi's RequestID middleware, then a
// generated one. The chosen id is echoed on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		if id == "" {
			id = NewRequestID()
		}

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
