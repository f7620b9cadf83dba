package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpulse_executions_total",
			Help: "Total number of workflow executions by terminal disposition",
		},
		[]string{"status", "source"},
	)

	TriggerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobpulse_trigger_duration_seconds",
			Help:    "End-to-end duration of engine trigger attempts",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	ReconcilerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpulse_reconciler_runs_total",
			Help: "Total number of reconciliation runs by outcome",
		},
		[]string{"status"},
	)

	DueWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobpulse_due_workflows",
			Help: "Number of workflow configs found due in the last reconciliation run",
		},
	)

	EngineStatusPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpulse_engine_status_polls_total",
			Help: "Total number of engine status polls by outcome",
		},
		[]string{"outcome"},
	)
)
