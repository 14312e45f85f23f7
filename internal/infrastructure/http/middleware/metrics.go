package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buildcached_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	cacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildcached_cache_operations_total",
			Help: "Cache operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)
	cacheObjectBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buildcached_cache_object_bytes",
			Help:    "Size distribution of stored cache objects",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"op"},
	)
)

// PrometheusMiddleware records request duration.
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())
		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// RecordCacheOp records a cache operation outcome ("hit", "miss", "denied",
// "error", "ok").
func RecordCacheOp(op, outcome string) {
	cacheOps.WithLabelValues(op, outcome).Inc()
}

// RecordObjectSize records the payload size of a store or fetch.
func RecordObjectSize(op string, bytes int64) {
	cacheObjectBytes.WithLabelValues(op).Observe(float64(bytes))
}
