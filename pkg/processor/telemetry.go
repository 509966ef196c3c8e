package processor

import (
	"time"

	"github.com/rhuss/relais/pkg/ollama"
)

// Recorder receives telemetry from the dispatch loop. Recording is
// fire-and-forget: implementations must not block, and no Recorder error
// can affect request processing.
type Recorder interface {
	// ObserveGenerate records the counters a completed generation
	// carried. Absent counters record nothing.
	ObserveGenerate(resp *ollama.GenerateResponse)

	// ObserveEmbeddings records the vectors an embedding call produced.
	ObserveEmbeddings(resp *ollama.EmbedResponse)

	// ObserveBackendCall records one facade call's wall-clock outcome.
	ObserveBackendCall(op string, dur time.Duration, err error)

	// ObserveEnvelope records the dispatch outcome of one bus envelope.
	ObserveEnvelope(kind, outcome string)
}

// nopRecorder stands in when no Recorder is injected.
type nopRecorder struct{}

func (nopRecorder) ObserveGenerate(*ollama.GenerateResponse)        {}
func (nopRecorder) ObserveEmbeddings(*ollama.EmbedResponse)         {}
func (nopRecorder) ObserveBackendCall(string, time.Duration, error) {}
func (nopRecorder) ObserveEnvelope(string, string)                  {}
