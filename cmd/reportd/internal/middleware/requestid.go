package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDContextKey is the context key for the request ID.
const RequestIDContextKey contextKey = "request_id"

type contextKey string

// RequestIDMiddleware tags every request with an ID so log lines and
// responses can be tied back together. Wraps the whole mux, so the
// ResponseWriter passes through untouched and websocket upgrades keep
// working.
type RequestIDMiddleware struct {
	logger *zap.Logger
}

// NewRequestIDMiddleware creates a new request ID middleware
func NewRequestIDMiddleware(logger *zap.Logger) *RequestIDMiddleware {
	return &RequestIDMiddleware{logger: logger}
}

// Middleware returns the HTTP middleware function
func (m *RequestIDMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := m.extractRequestID(r)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		m.logger.Debug("Request received",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractRequestID pulls a caller-supplied ID off the request headers
func (m *RequestIDMiddleware) extractRequestID(r *http.Request) string {
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		return requestID
	}

	// W3C traceparent: reuse the trace-id so logs line up with spans.
	if traceparent := r.Header.Get("traceparent"); traceparent != "" {
		parts := strings.Split(traceparent, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}

	return ""
}

// RequestIDFromContext extracts the request ID, if any
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDContextKey).(string)
	return id, ok
}
