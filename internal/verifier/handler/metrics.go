package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bluecheckRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bluecheck_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	bluecheckRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bluecheck_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	bluecheckVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bluecheck_verifications_total",
		Help: "Total create-record attempts by outcome.",
	}, []string{"result"})

	bluecheckProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bluecheck_provider_errors_total",
		Help: "Provider errors swallowed by fail-closed checks, by operation.",
	}, []string{"provider", "op"})

	bluecheckCollaboratorUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bluecheck_collaborator_up",
		Help: "Reachability of external collaborators (1 up, 0 down).",
	}, []string{"collaborator"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		bluecheckRequestsTotal.WithLabelValues(method, path, status).Inc()
		bluecheckRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordVerification records the outcome of a create-record attempt.
func RecordVerification(result string) {
	bluecheckVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordProviderError records a provider error swallowed by a fail-closed check.
func RecordProviderError(provider, op string) {
	bluecheckProviderErrorsTotal.WithLabelValues(provider, op).Inc()
}

// SetCollaboratorUp records the reachability of an external collaborator.
func SetCollaboratorUp(collaborator string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	bluecheckCollaboratorUp.WithLabelValues(collaborator).Set(v)
}
