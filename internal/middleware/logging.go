package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

// RequestLogger logs one line per request and, when metrics is non-nil,
// records the request in the server metrics. The route is the matched chi
// pattern so path parameters do not explode metric cardinality.
func RequestLogger(logger *slog.Logger, metrics *telemetry.ServerMetrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			elapsed := time.Since(start)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
			if metrics != nil {
				metrics.RecordRequest(r.Context(), r.Method, route, strconv.Itoa(status), float64(elapsed)/float64(time.Millisecond))
			}
		})
	}
}
