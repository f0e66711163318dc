// Package observability exposes Prometheus metrics for the dispatcher and
// workflow engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all NERVA collectors; the ops HTTP surface (when enabled)
// serves it, and tests can read it directly.
var Registry = prometheus.NewRegistry()

var (
	// DispatchTotal counts finished dispatches by route and final status.
	DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nerva_dispatch_total",
		Help: "Dispatched tasks by route and final status.",
	}, []string{"route", "status"})

	// DispatchDuration tracks wall time from accept to TaskResult.
	DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nerva_dispatch_duration_seconds",
		Help:    "Dispatch latency from accept to result.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// DagNodeTotal counts DAG node outcomes.
	DagNodeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nerva_dag_node_total",
		Help: "Workflow node terminal statuses.",
	}, []string{"status"})

	// LLMRequestTotal counts model calls by outcome.
	LLMRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nerva_llm_request_total",
		Help: "LLM requests by outcome.",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(DispatchTotal, DispatchDuration, DagNodeTotal, LLMRequestTotal)
}
