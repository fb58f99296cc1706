// Package telemetry exposes prometheus metrics for the chat server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts served requests by method, path and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "path", "status"})

	// HTTPDuration tracks request latency by path.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupchat_http_request_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	// Turns counts completed persona turns by outcome.
	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_turns_total",
		Help: "Persona turns by outcome (ok, error, cancelled).",
	}, []string{"outcome"})

	// StreamTimeouts counts reply streams that stalled mid-read.
	StreamTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_stream_timeouts_total",
		Help: "Reply streams that hit the per-read timeout.",
	})

	// HistorySaves counts transcript writes to the store.
	HistorySaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_history_saves_total",
		Help: "Transcript saves.",
	})

	// HistoryLoads counts transcript reads from the store.
	HistoryLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_history_loads_total",
		Help: "Transcript loads.",
	})

	// UpstreamErrors counts failed upstream model calls by kind.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_upstream_errors_total",
		Help: "Upstream model call failures.",
	}, []string{"kind"})
)

// Handler returns the metrics scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
