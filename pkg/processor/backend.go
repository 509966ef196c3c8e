package processor

import (
	"context"

	"github.com/rhuss/relais/pkg/ollama"
)

// Backend is the facade over the generative backend the processor
// dispatches to. *ollama.Client satisfies it; tests substitute fakes.
//
// Implementations must be safe for concurrent use: multiple processor
// instances share one backend.
type Backend interface {
	// ListModels returns the models the backend has locally.
	ListModels(ctx context.Context) ([]ollama.LocalModel, error)

	// ShowModel returns detail for a single model.
	ShowModel(ctx context.Context, name string) (*ollama.ModelInfo, error)

	// Generate performs one non-streaming completion.
	Generate(ctx context.Context, req *ollama.GenerateRequest) (*ollama.GenerateResponse, error)

	// Embed produces embedding vectors for the given inputs.
	Embed(ctx context.Context, req *ollama.EmbedRequest) (*ollama.EmbedResponse, error)

	// Pull downloads a model into the backend, blocking until it is
	// available or the download fails.
	Pull(ctx context.Context, name string, insecure bool) (*ollama.PullStatus, error)
}

// Ensure the HTTP client satisfies the facade at compile time.
var _ Backend = (*ollama.Client)(nil)
