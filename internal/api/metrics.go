package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aal_events_total",
		Help: "Total ledger events appended, by action type.",
	}, []string{"action_type"})

	ledgerVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aal_verifications_total",
		Help: "Total chain verifications by result.",
	}, []string{"result"})

	alertDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aal_alert_deliveries_total",
		Help: "Total tamper alert delivery attempts by outcome.",
	}, []string{"outcome"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aal_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aal_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
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

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAppend records a successfully appended event.
func RecordAppend(actionType string) {
	ledgerEventsTotal.WithLabelValues(actionType).Inc()
}

// RecordAlertDelivery records a tamper alert delivery attempt.
func RecordAlertDelivery(success bool) {
	if success {
		alertDeliveriesTotal.WithLabelValues("delivered").Inc()
	} else {
		alertDeliveriesTotal.WithLabelValues("failed").Inc()
	}
}

// RecordVerification records a chain verification outcome.
func RecordVerification(valid bool) {
	if valid {
		ledgerVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		ledgerVerificationsTotal.WithLabelValues("invalid").Inc()
	}
}
