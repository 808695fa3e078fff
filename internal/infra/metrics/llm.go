package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(llmCallsLatencyMs, llmAttemptsTotal) }

var llmCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "llm_calls_latency_ms",
		Help:    "LLM call latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 20000},
	},
	[]string{"provider", "model", "success"},
)

var llmAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "llm_call_attempts_total",
		Help: "Individual LLM attempts by provider and outcome.",
	},
	[]string{"provider", "outcome"}, // 'ok', 'transient', 'permanent'
)

func ObserveLLMCall(provider, model string, latencyMs int, success bool) {
	llmCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncLLMAttempt(provider, outcome string) {
	llmAttemptsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
