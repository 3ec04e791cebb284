// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_queries_total",
			Help: "Total number of answered queries by HTTP status",
		},
		[]string{"status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_query_duration_seconds",
			Help:    "End-to-end query latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"status"},
	)

	CitationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_citations_total",
			Help: "Normalized citations by source kind: s3, web, other or none",
		},
		[]string{"kind"},
	)

	BackendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_backend_errors_total",
			Help: "Retrieve-and-generate failures by error code",
		},
		[]string{"code"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
