// Package metrics exposes Prometheus instrumentation for the panel server
// and the bootstrap pipeline: HTTP request metrics plus counters for
// bootstrap outcomes, exchange failures, gated uses and login prompts.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequestsTotal counts the total number of HTTP requests processed.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamdictionary_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDurationSeconds tracks the duration of HTTP requests.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dreamdictionary_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// activeConnections tracks the number of currently active connections.
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dreamdictionary_active_connections",
			Help: "Number of currently active HTTP connections",
		},
	)

	// bootstrapOutcomes counts bootstrap pipeline runs by outcome.
	bootstrapOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamdictionary_bootstrap_outcomes_total",
			Help: "Bootstrap pipeline runs grouped by outcome",
		},
		[]string{"outcome"},
	)

	// exchangeFailures counts failed identity exchanges by reason.
	exchangeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamdictionary_exchange_failures_total",
			Help: "Identity exchange failures grouped by reason",
		},
		[]string{"reason"},
	)

	// gatedUses counts gated actions, split by whether a session was present.
	gatedUses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamdictionary_gated_uses_total",
			Help: "Gated actions grouped by authentication state",
		},
		[]string{"authenticated"},
	)

	// usagePrompts counts login prompts shown to anonymous visitors.
	usagePrompts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dreamdictionary_usage_prompts_total",
			Help: "Login prompts shown to anonymous visitors",
		},
	)

	// interpretRequests counts interpretation calls by result.
	interpretRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamdictionary_interpret_requests_total",
			Help: "Dream interpretation requests grouped by result",
		},
		[]string{"result"},
	)

	// metricsRegistered ensures metrics are only registered once.
	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

// Bootstrap outcome labels.
const (
	OutcomeResolved        = "resolved"
	OutcomeFallback        = "fallback"
	OutcomeLoginError      = "login_error"
	OutcomeMissingIdentity = "missing_identity"
	OutcomeNoRedirect      = "no_redirect"
)

// SetMetricsEnabled toggles Prometheus metrics collection.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// IsMetricsEnabled reports whether metrics are enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// RegisterMetrics registers all Prometheus metrics.
// It is safe to call multiple times; metrics will only be registered once.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}

	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		activeConnections,
		bootstrapOutcomes,
		exchangeFailures,
		gatedUses,
		usagePrompts,
		interpretRequests,
	)
}

// PrometheusMiddleware returns a Gin middleware that collects request count,
// duration and active connection metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.Next()
			return
		}
		RegisterMetrics()

		// Skip the metrics endpoint to avoid self-referential metrics.
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		activeConnections.Inc()
		defer activeConnections.Dec()

		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath collapses unknown paths so label cardinality stays bounded.
func normalizePath(path string) string {
	switch path {
	case "/", "/healthz", "/metrics", "/events",
		"/auth/callback", "/auth/session", "/auth/logout",
		"/api/interpret", "/api/history", "/api/stats":
		return path
	default:
		if len(path) > 50 {
			return path[:50] + "..."
		}
		return path
	}
}

// MetricsHandler returns the Prometheus HTTP handler for the /metrics endpoint.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		RegisterMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordBootstrapOutcome records one bootstrap pipeline run.
func RecordBootstrapOutcome(outcome string) {
	if !IsMetricsEnabled() {
		return
	}
	bootstrapOutcomes.WithLabelValues(outcome).Inc()
}

// RecordExchangeFailure records a failed identity exchange.
// reason should name the failure class (e.g. "status", "body", "transport").
func RecordExchangeFailure(reason string) {
	if !IsMetricsEnabled() {
		return
	}
	exchangeFailures.WithLabelValues(reason).Inc()
}

// RecordGatedUse records a gated action.
func RecordGatedUse(authenticated bool) {
	if !IsMetricsEnabled() {
		return
	}
	gatedUses.WithLabelValues(strconv.FormatBool(authenticated)).Inc()
}

// RecordUsagePrompt records a login prompt shown to an anonymous visitor.
func RecordUsagePrompt() {
	if !IsMetricsEnabled() {
		return
	}
	usagePrompts.Inc()
}

// RecordInterpretRequest records an interpretation call result
// ("ok" or "error").
func RecordInterpretRequest(result string) {
	if !IsMetricsEnabled() {
		return
	}
	interpretRequests.WithLabelValues(result).Inc()
}
