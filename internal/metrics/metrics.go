// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter metrics (monotonically increasing)
var (
	// SearchesTotal counts ranked search executions by endpoint (search, suggest)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trikaweb_searches_total",
			Help: "Total number of search requests",
		},
		[]string{"endpoint"},
	)

	// GateDecisionsTotal counts write gate verdicts by outcome and reason
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trikaweb_gate_decisions_total",
			Help: "Total number of write gate decisions",
		},
		[]string{"outcome", "reason"},
	)

	// RatingsTotal counts accepted rating writes by kind (sheet, teacher)
	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trikaweb_ratings_total",
			Help: "Total number of accepted rating writes",
		},
		[]string{"kind"},
	)

	// SheetViewsTotal counts logged sheet views
	SheetViewsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trikaweb_sheet_views_total",
			Help: "Total number of logged sheet views",
		},
	)

	// DriveSyncFilesTotal counts drive sync outcomes per file
	DriveSyncFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trikaweb_drive_sync_files_total",
			Help: "Total number of files processed by drive sync",
		},
		[]string{"kind", "status"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trikaweb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ErrorsTotal counts application errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trikaweb_errors_total",
			Help: "Total number of application errors",
		},
		[]string{"type"},
	)
)

// Histogram metrics
var (
	// HTTPRequestDuration tracks request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trikaweb_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordGateDecision records one write gate verdict.
func RecordGateDecision(allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	GateDecisionsTotal.WithLabelValues(outcome, reason).Inc()
}
