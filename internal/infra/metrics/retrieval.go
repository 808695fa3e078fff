package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(retrievalRequestsTotal) }

var retrievalRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retrieval_requests_total",
		Help: "Context retrieval requests by outcome.",
	},
	[]string{"outcome"}, // 'ok', 'empty', 'unavailable'
)

func IncRetrieval(outcome string) { retrievalRequestsTotal.WithLabelValues(norm(outcome)).Inc() }
