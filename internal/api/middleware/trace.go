// Package middleware holds HTTP middleware for the local API surface.
package middleware

import (
	"net/http"

	"github.com/avelines/taskwatch/internal/api/shared"
	"github.com/avelines/taskwatch/internal/platform/logger"
)

// TraceMiddleware adds a trace ID to the request context along with a
// logger carrying it, so everything downstream logs with the same
// correlation attribute. Apply it early in the chain.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())

		traceLogger := logger.FromContext(ctx).With("trace_id", shared.GetTraceID(ctx))
		ctx = logger.WithLogger(ctx, traceLogger)

		traceLogger.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
