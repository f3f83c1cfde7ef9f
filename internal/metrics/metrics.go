// Package metrics provides Prometheus instrumentation for the dashboard.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recon_dashboard"

var (
	// HTTPRequestsTotal counts dashboard HTTP requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled by the dashboard.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes dashboard request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Dashboard HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// BackendCallsTotal counts calls to the reconciliation backend by operation and result.
	BackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Reconciliation backend calls by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// BackendCallDuration observes backend call latency.
	BackendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Reconciliation backend call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RefreshesTotal counts dashboard data refreshes by mode and result.
	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Dashboard refreshes by mode (initial, manual, background) and result.",
		},
		[]string{"mode", "result"},
	)

	// RefreshesSkippedTotal counts refreshes that did not run or whose result
	// was discarded as stale.
	RefreshesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_skipped_total",
			Help:      "Refreshes skipped or discarded, by reason.",
		},
		[]string{"reason"},
	)

	// BreakerState reports the background refresh breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "refresh_breaker_state",
		Help:      "Background refresh circuit breaker state (0 closed, 1 half-open, 2 open).",
	})

	// LastSyncTimestamp is the unix time of the last successful refresh.
	LastSyncTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix time of the last successful dashboard sync.",
	})

	// OpenExceptions tracks the number of open reconciliation exceptions shown.
	OpenExceptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_exceptions",
		Help:      "Open reconciliation exceptions in the last snapshot.",
	})

	// ActiveWebSocketClients tracks connected snapshot subscribers.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websocket_clients",
		Help:      "Number of connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BackendCallsTotal,
		BackendCallDuration,
		RefreshesTotal,
		RefreshesSkippedTotal,
		BreakerState,
		LastSyncTimestamp,
		OpenExceptions,
		ActiveWebSocketClients,
	)
}

// RecordBackendCall records one backend call outcome.
func RecordBackendCall(operation string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	BackendCallsTotal.WithLabelValues(operation, result).Inc()
	BackendCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordRefresh records one refresh outcome.
func RecordRefresh(mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RefreshesTotal.WithLabelValues(mode, result).Inc()
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
