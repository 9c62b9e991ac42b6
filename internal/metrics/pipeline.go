package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	StageStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "pipeline_stage_started_total",
			Help:      "Pipeline stage executions started",
		},
		[]string{"stage"},
	)

	StageCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "pipeline_stage_completed_total",
			Help:      "Pipeline stage executions completed, by outcome",
		},
		[]string{"stage", "outcome"}, // "success" / "failure" / "superseded"
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docdex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "pipeline_tasks_enqueued_total",
			Help:      "Tasks enqueued per stage",
		},
		[]string{"stage"},
	)

	TasksCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "pipeline_tasks_cancelled_total",
			Help:      "Cancellation requests issued",
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "search_requests_total",
			Help:      "Search requests, by domain and status",
		},
		[]string{"domain", "status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StageStartedTotal)
	prometheus.MustRegister(StageCompletedTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksCancelledTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	pipelineMetricsRegistered = true
}
