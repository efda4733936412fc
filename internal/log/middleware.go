package log

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware puts a request-scoped logger into the context and logs each
// completed request. Level follows the status code.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(
				FieldRequestID, middleware.GetReqID(r.Context()),
				FieldMethod, r.Method,
				FieldPath, r.URL.Path,
			)
			ctx := IntoContext(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= 400 && status < 500 {
				level = slog.LevelWarn
			} else if status >= 500 {
				level = slog.LevelError
			}

			fields := NewFields().
				WithHTTPResponse(status, time.Since(start).Milliseconds())
			fields[FieldQuery] = r.URL.RawQuery
			fields[FieldClientIP] = r.RemoteAddr
			reqLogger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
		})
	}
}
