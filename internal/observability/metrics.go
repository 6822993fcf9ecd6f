package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CoursesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "clappy", Name: "courses_created_total", Help: "Total courses requested"})
	ClaimsWon      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "clappy", Name: "claims_won_total", Help: "Claim attempts that won the race"})
	ClaimsLost     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "clappy", Name: "claims_lost_total", Help: "Claim attempts that lost the race"})
	CoursesDone    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "clappy", Name: "courses_completed_total", Help: "Courses completed"})
	CoursesAborted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "clappy", Name: "courses_cancelled_total", Help: "Courses cancelled"})

	DriversConnected = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "clappy", Name: "drivers_connected", Help: "Drivers with a live presence session"})

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clappy", Name: "notifications_sent_total", Help: "Notifications delivered per sink"},
		[]string{"sink"},
	)
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clappy", Name: "notifications_failed_total", Help: "Notifications dropped after retries per sink"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clappy", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clappy",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
