// Package middleware provides HTTP middleware shared by every route.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/solvenet/recaptcha-api/internal/api/shared"
	"github.com/solvenet/recaptcha-api/internal/platform/logger"
)

// Trace adds a trace ID to the request context and attaches a
// trace-scoped logger for downstream handlers. Apply it early in the
// middleware chain so every handler sees the trace ID.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		traceID := shared.GetTraceID(ctx)

		log := slog.With(slog.String("trace_id", traceID))
		ctx = logger.WithContext(ctx, log)

		log.Debug("request started",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
