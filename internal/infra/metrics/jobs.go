package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobDurationSeconds, stageLatencySeconds, stageFailuresTotal, jobsRequeuedTotal)
}

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evaluation_jobs_processed_total",
		Help: "Total number of evaluation jobs processed, labeled by final status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "evaluation_job_duration_seconds",
		Help:    "Wall-clock duration of a full evaluation job.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
)

var stageLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "evaluation_stage_latency_seconds",
		Help:    "Latency distribution per pipeline stage.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
	},
	[]string{"stage"}, // 'cv', 'project', 'summary'
)

var stageFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evaluation_stage_failures_total",
		Help: "Stage failures by stage and error kind.",
	},
	[]string{"stage", "kind"}, // kind: 'llm_exhausted', 'schema', 'retrieval', 'timeout'
)

var jobsRequeuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "evaluation_jobs_requeued_total",
		Help: "Abandoned processing jobs handed back to the queue.",
	},
)

func IncJobProcessed(status string)   { jobsProcessedTotal.WithLabelValues(norm(status)).Inc() }
func IncJobsRequeued(n int)           { jobsRequeuedTotal.Add(float64(n)) }
func ObserveJobDuration(secs float64) { jobDurationSeconds.Observe(secs) }
func ObserveStageLatency(stage string, secs float64) {
	stageLatencySeconds.WithLabelValues(norm(stage)).Observe(secs)
}
func IncStageFailure(stage, kind string) {
	stageFailuresTotal.WithLabelValues(norm(stage), norm(kind)).Inc()
}
