package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/codepair-live/codepair/internal/metrics"
)

// Metrics returns middleware that records Prometheus metrics. The chi
// response wrapper is used so the websocket upgrade (a hijacked
// connection) still works underneath it.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(ww.Status()),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses frontend asset paths into one label to avoid
// high cardinality in metrics.
func normalizePath(path string) string {
	switch path {
	case "/ws", "/healthz", "/api/stats", "/metrics":
		return path
	}
	return "/static"
}
