package processor

import "github.com/rhuss/relais/pkg/ollama"

// Operation is a backend request produced by an Adaptor from an inbound
// bus payload. The set is closed: each operation maps to exactly one
// facade call per request.
type Operation interface {
	isOperation()
}

// ListModelsOp asks for the backend's local model listing.
type ListModelsOp struct{}

// ModelInfoOp asks for detail on a single model.
type ModelInfoOp struct {
	Name string
}

// GenerateOp asks for one non-streaming completion.
type GenerateOp struct {
	Req *ollama.GenerateRequest
}

// EmbedOp asks for embedding vectors.
type EmbedOp struct {
	Req *ollama.EmbedRequest
}

func (ListModelsOp) isOperation() {}
func (ModelInfoOp) isOperation()  {}
func (GenerateOp) isOperation()   {}
func (EmbedOp) isOperation()      {}

// Result is the backend's answer to an Operation, handed back to the
// Adaptor for outbound translation.
type Result interface {
	isResult()
}

// ModelsResult answers a ListModelsOp.
type ModelsResult struct {
	Models []ollama.LocalModel
}

// ModelInfoResult answers a ModelInfoOp. Name echoes the requested model
// because the backend's show response does not repeat it.
type ModelInfoResult struct {
	Name string
	Info *ollama.ModelInfo
}

// GenerateResult answers a GenerateOp.
type GenerateResult struct {
	Resp *ollama.GenerateResponse
}

// EmbedResult answers an EmbedOp.
type EmbedResult struct {
	Resp *ollama.EmbedResponse
}

func (ModelsResult) isResult()    {}
func (ModelInfoResult) isResult() {}
func (GenerateResult) isResult()  {}
func (EmbedResult) isResult()     {}
