package middleware

import (
	"net/http"
	"time"

	"github.com/R3E-Network/jamef_tracker/internal/logging"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware adds a trace ID and the client IP to the request context
// and logs every request once it completes.
type TracingMiddleware struct {
	logger  *logging.Logger
	proxies *TrustedProxies
}

// NewTracingMiddleware creates a new tracing middleware. Forwarding headers
// are honoured only when the peer is in proxies.
func NewTracingMiddleware(logger *logging.Logger, proxies *TrustedProxies) *TracingMiddleware {
	return &TracingMiddleware{logger: logger, proxies: proxies}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		ctx = logging.WithClientIP(ctx, m.proxies.ClientIP(r))
		w.Header().Set(TraceHeader, traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
