// Package logging configures the process-wide structured logger and an
// HTTP middleware that binds a request ID to every log line emitted while
// handling that request — the Go shape of the reference's structlog
// middleware (app/core/logging_middleware.py).
package logging

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const loggerKey ctxKey = 0

// New builds the process-wide logger: JSON to stdout, ISO-8601 timestamps,
// info level by default.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger bound to ctx, or a disabled logger if none
// was bound.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}

// Middleware binds a request ID, method and path to a per-request logger,
// stores it in the request context, sets the X-Request-ID response header,
// and emits a single "request_finished" (or "request_failed" on panic)
// event with the elapsed duration — mirroring logging_middleware.py's
// bind_contextvars / request_finished / request_failed pair.
func Middleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			start := time.Now()

			reqLogger := base.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ctx := WithLogger(r.Context(), reqLogger)
			w.Header().Set("X-Request-ID", requestID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				duration := time.Since(start)
				if rec := recover(); rec != nil {
					reqLogger.Error().
						Interface("panic", rec).
						Dur("duration", duration).
						Msg("request_failed")
					if sw.status == http.StatusOK {
						sw.WriteHeader(http.StatusInternalServerError)
					}
					return
				}
				reqLogger.Info().
					Int("status_code", sw.status).
					Dur("duration", duration).
					Msg("request_finished")
			}()

			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
