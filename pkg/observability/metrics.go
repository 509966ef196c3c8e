// Package observability provides Prometheus metrics for monitoring the
// relais processor and the Recorder the dispatch loop reports into.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// GenerationBuckets covers backend-reported generation phases in
// milliseconds, from model-load blips to multi-minute completions.
var GenerationBuckets = []float64{10, 50, 100, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000}

var (
	// PromptTokensTotal counts prompt tokens reported by the backend,
	// by operation kind and model.
	PromptTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_prompt_tokens_total",
			Help: "Prompt tokens reported by the backend",
		},
		[]string{"type", "model"},
	)

	// GeneratedTokensTotal counts generated tokens by operation kind and
	// model. Embedding operations count produced vectors here.
	GeneratedTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_generated_tokens_total",
			Help: "Generated tokens reported by the backend",
		},
		[]string{"type", "model"},
	)

	// GenerationDuration records the backend-reported phase durations of a
	// generation in milliseconds. The type label carries the phase: total,
	// load, prompt, eval.
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relais_generation_duration_milliseconds",
			Help:    "Backend-reported generation durations",
			Buckets: GenerationBuckets,
		},
		[]string{"type", "model"},
	)

	// BackendRequestsTotal counts facade calls against the backend by
	// operation and outcome.
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_backend_requests_total",
			Help: "Backend requests",
		},
		[]string{"op", "status"},
	)

	// BackendLatency records wall-clock facade call latency in seconds.
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relais_backend_latency_seconds",
			Help:    "Backend latency",
			Buckets: LLMBuckets,
		},
		[]string{"op"},
	)

	// EnvelopesTotal counts dispatched envelopes by kind and outcome.
	EnvelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_envelopes_total",
			Help: "Dispatched envelopes",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		PromptTokensTotal,
		GeneratedTokensTotal,
		GenerationDuration,
		BackendRequestsTotal,
		BackendLatency,
		EnvelopesTotal,
	)
}
