// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RouteAnalyses counts analysis attempts by outcome:
	// "completed", "insufficient_data" or "failed"
	RouteAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_analyses_total",
			Help: "Total number of GPX route analyses by outcome",
		},
		[]string{"outcome"},
	)

	// RouteAnalysisDuration observes end-to-end job time including backfill
	RouteAnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "route_analysis_duration_seconds",
			Help:    "Duration of route analysis jobs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// BackfillChunks counts elevation lookup chunks by result:
	// "fetched", "cached" or "failed"
	BackfillChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_backfill_chunks_total",
			Help: "Total number of elevation backfill chunks by result",
		},
		[]string{"result"},
	)

	// BackfillBreakerState is 0 closed, 1 half-open, 2 open
	BackfillBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "elevation_backfill_circuit_breaker_state",
			Help: "Elevation lookup circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// QueueJobs counts jobs reaching a terminal status
	QueueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_queue_jobs_total",
			Help: "Total number of analysis jobs by terminal status",
		},
		[]string{"status"},
	)
)
