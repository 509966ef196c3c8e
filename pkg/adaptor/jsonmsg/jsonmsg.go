// Package jsonmsg provides the stock JSON payload adaptor. Inbound
// payloads are JSON objects tagged with an "op" field naming the backend
// operation; outbound payloads echo the tag alongside the result. The
// adaptor is a pure wire codec: it never talks to the backend itself and
// treats the bus service name as routing detail only.
package jsonmsg

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/relais/pkg/ollama"
	"github.com/rhuss/relais/pkg/processor"
)

const (
	opListModels = "list_models"
	opModelInfo  = "model_info"
	opGenerate   = "generate"
	opEmbed      = "embed"
)

// Adaptor translates op-tagged JSON payloads. It is stateless and safe to
// construct once per processor instance.
type Adaptor struct{}

var _ processor.Adaptor = (*Adaptor)(nil)

// New returns a stateless JSON adaptor.
func New() *Adaptor {
	return &Adaptor{}
}

// Factory builds the adaptor for a processor instance. It matches
// processor.AdaptorFactory so it can be wired directly.
func Factory(*processor.Processor) (processor.Adaptor, error) {
	return New(), nil
}

// TranslateRequest decodes an inbound payload into its operation. The
// payload shape is flat: request fields sit next to the "op" tag, e.g.
// {"op":"generate","model":"llama3","prompt":"..."}.
func (a *Adaptor) TranslateRequest(_ string, payload []byte) (processor.Operation, error) {
	var probe struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("jsonmsg: decoding payload: %w", err)
	}

	switch probe.Op {
	case opListModels:
		return processor.ListModelsOp{}, nil

	case opModelInfo:
		var msg struct {
			Model string `json:"model"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("jsonmsg: decoding %s payload: %w", opModelInfo, err)
		}
		if msg.Model == "" {
			return nil, fmt.Errorf("jsonmsg: %s requires a model", opModelInfo)
		}
		return processor.ModelInfoOp{Name: msg.Model}, nil

	case opGenerate:
		var req ollama.GenerateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("jsonmsg: decoding %s payload: %w", opGenerate, err)
		}
		return processor.GenerateOp{Req: &req}, nil

	case opEmbed:
		var req ollama.EmbedRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("jsonmsg: decoding %s payload: %w", opEmbed, err)
		}
		return processor.EmbedOp{Req: &req}, nil

	case "":
		return nil, fmt.Errorf("jsonmsg: payload has no op")

	default:
		return nil, fmt.Errorf("jsonmsg: unknown op %q", probe.Op)
	}
}

// TranslateResponse encodes a result as an op-tagged JSON payload, with
// the backend response fields inlined next to the tag.
func (a *Adaptor) TranslateResponse(res processor.Result) ([]byte, error) {
	switch r := res.(type) {
	case processor.ModelsResult:
		return json.Marshal(struct {
			Op     string              `json:"op"`
			Models []ollama.LocalModel `json:"models"`
		}{opListModels, r.Models})

	case processor.ModelInfoResult:
		return json.Marshal(struct {
			Op    string            `json:"op"`
			Model string            `json:"model"`
			Info  *ollama.ModelInfo `json:"info"`
		}{opModelInfo, r.Name, r.Info})

	case processor.GenerateResult:
		return json.Marshal(struct {
			Op string `json:"op"`
			*ollama.GenerateResponse
		}{opGenerate, r.Resp})

	case processor.EmbedResult:
		return json.Marshal(struct {
			Op string `json:"op"`
			*ollama.EmbedResponse
		}{opEmbed, r.Resp})

	default:
		return nil, fmt.Errorf("jsonmsg: unsupported result %T", res)
	}
}

// Close is a no-op: the adaptor holds no resources.
func (a *Adaptor) Close() error { return nil }
