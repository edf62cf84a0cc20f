package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts requests by route template, method and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks handler latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "method"},
	)
)

// Signup metrics
var (
	// SignupsTotal counts signup attempts by result
	// (ok, not_found, duplicate, full, invalid, error)
	SignupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_signups_total",
			Help: "Activity signup attempts by result",
		},
		[]string{"result"},
	)

	// UnregistrationsTotal counts unregister attempts by result
	UnregistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_unregistrations_total",
			Help: "Activity unregister attempts by result",
		},
		[]string{"result"},
	)
)

// Cache metrics
var (
	// ResponseCacheTotal counts /activities cache lookups by outcome (hit, miss)
	ResponseCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_lookups_total",
			Help: "Response cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)
