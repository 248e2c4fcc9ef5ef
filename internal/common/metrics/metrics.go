// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_evaluations_total",
			Help: "Total number of completed loan evaluations",
		},
		[]string{"source", "status"},
	)

	EvaluationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_evaluations_failed_total",
			Help: "Total number of evaluations that ended in an error",
		},
		[]string{"source", "error_code"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loan_evaluation_duration_seconds",
			Help:    "Duration of verdict source calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5, 10},
		},
		[]string{"source"},
	)

	EvaluationsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loan_evaluations_in_flight",
			Help: "Number of evaluations currently running",
		},
		[]string{"source"},
	)

	FormActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_form_actions_total",
			Help: "Form actions handled by the web server",
		},
		[]string{"action"},
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
