package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics, served on /metrics.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "console",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	authFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected console requests",
		},
		[]string{"reason"},
	)

	activeAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "console",
			Subsystem: "alerts",
			Name:      "active",
			Help:      "Alert banners currently shown",
		},
	)

	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Compliance sweep runs by outcome",
		},
		[]string{"outcome"},
	)
)
