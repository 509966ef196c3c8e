package observability

import (
	"time"

	"github.com/rhuss/relais/pkg/ollama"
	"github.com/rhuss/relais/pkg/processor"
)

// Recorder feeds backend responses into the Prometheus metric families. It
// is the production implementation of the observer the processor accepts;
// recording never fails and never blocks.
type Recorder struct{}

// Ensure the Recorder satisfies the processor's observer at compile time.
var _ processor.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder backed by the package metric families.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveGenerate records token counts and phase durations from a
// generation response. Fields the backend omitted record nothing.
func (r *Recorder) ObserveGenerate(resp *ollama.GenerateResponse) {
	if resp.PromptEvalCount != nil {
		PromptTokensTotal.WithLabelValues("gen", resp.Model).Add(float64(*resp.PromptEvalCount))
	}
	if resp.EvalCount != nil {
		GeneratedTokensTotal.WithLabelValues("gen", resp.Model).Add(float64(*resp.EvalCount))
	}
	if resp.TotalDuration != nil {
		GenerationDuration.WithLabelValues("total", resp.Model).Observe(millis(*resp.TotalDuration))
	}
	if resp.LoadDuration != nil {
		GenerationDuration.WithLabelValues("load", resp.Model).Observe(millis(*resp.LoadDuration))
	}
	if resp.PromptEvalDuration != nil {
		GenerationDuration.WithLabelValues("prompt", resp.Model).Observe(millis(*resp.PromptEvalDuration))
	}
	if resp.EvalDuration != nil {
		GenerationDuration.WithLabelValues("eval", resp.Model).Observe(millis(*resp.EvalDuration))
	}
}

// ObserveEmbeddings records the number of produced vectors.
func (r *Recorder) ObserveEmbeddings(resp *ollama.EmbedResponse) {
	GeneratedTokensTotal.WithLabelValues("embed", resp.Model).Add(float64(len(resp.Embeddings)))
}

// ObserveBackendCall records one facade call with its wall-clock duration.
func (r *Recorder) ObserveBackendCall(op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	BackendRequestsTotal.WithLabelValues(op, status).Inc()
	BackendLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveEnvelope records one dispatched envelope by kind and outcome.
func (r *Recorder) ObserveEnvelope(kind, outcome string) {
	EnvelopesTotal.WithLabelValues(kind, outcome).Inc()
}

// millis converts backend-reported nanoseconds to milliseconds.
func millis(ns int64) float64 {
	return float64(ns) / float64(time.Millisecond)
}
