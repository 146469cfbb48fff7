package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelines/taskwatch/internal/api/shared"
	"github.com/avelines/taskwatch/internal/platform/logger"
)

func TestTraceMiddleware_SetsTraceID(t *testing.T) {
	t.Parallel()

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	TraceMiddleware(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	assert.Len(t, seen, 2*shared.TraceIDLength)
}

func TestTraceMiddleware_InstallsRequestScopedLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("handling request")
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req = req.WithContext(logger.WithLogger(req.Context(), base))
	TraceMiddleware(inner).ServeHTTP(httptest.NewRecorder(), req)

	require.NotEmpty(t, seen)

	// The handler's log line went through the middleware-installed
	// logger and carries the request's trace ID.
	assert.Contains(t, buf.String(), `"msg":"handling request"`)
	assert.Contains(t, buf.String(), `"trace_id":"`+seen+`"`)
}
