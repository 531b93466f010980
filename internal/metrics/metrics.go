// Package metrics exposes the prometheus collectors served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventhub_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	NotificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_notification_attempts_total",
			Help: "Notification delivery attempts by template, channel and outcome.",
		},
		[]string{"template", "channel", "outcome"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_job_runs_total",
			Help: "Scheduled job runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	RemindersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_reminders_created_total",
			Help: "Reminder records created by the reminder job.",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventhub_channel_breaker_state",
			Help: "Delivery channel circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
		[]string{"channel"},
	)

	LoginRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_login_rate_limited_total",
			Help: "Login attempts rejected by the rate limiter.",
		},
	)
)

func RecordHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordNotification(template, channel string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	NotificationAttempts.WithLabelValues(template, channel, outcome).Inc()
}

func RecordJob(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	JobRuns.WithLabelValues(job, outcome).Inc()
}
