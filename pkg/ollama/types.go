package ollama

import "time"

// ModelDetails describes the build parameters of a model as reported by the
// backend.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model,omitempty"`
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

// LocalModel is one entry of the backend's local model listing.
type LocalModel struct {
	Name       string       `json:"name"`
	Model      string       `json:"model,omitempty"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest,omitempty"`
	Details    ModelDetails `json:"details"`
}

type listModelsResponse struct {
	Models []LocalModel `json:"models"`
}

// ModelInfo is the detailed description of a single model.
type ModelInfo struct {
	License      string         `json:"license,omitempty"`
	Modelfile    string         `json:"modelfile,omitempty"`
	Parameters   string         `json:"parameters,omitempty"`
	Template     string         `json:"template,omitempty"`
	Details      ModelDetails   `json:"details"`
	Info         map[string]any `json:"model_info,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
}

type showRequest struct {
	Model string `json:"model"`
}

// GenerateRequest is a non-streaming text generation request. Stream is
// forced off by the client regardless of its value here.
type GenerateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Template  string         `json:"template,omitempty"`
	Context   []int          `json:"context,omitempty"`
	Stream    bool           `json:"stream"`
	Raw       bool           `json:"raw,omitempty"`
	Format    string         `json:"format,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// GenerateResponse is the backend's answer to a generation request. The
// counter and duration fields are optional on the wire and stay nil when
// the backend omits them; durations are reported in nanoseconds.
type GenerateResponse struct {
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Response   string    `json:"response"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason,omitempty"`
	Context    []int     `json:"context,omitempty"`

	TotalDuration      *int64 `json:"total_duration,omitempty"`
	LoadDuration       *int64 `json:"load_duration,omitempty"`
	PromptEvalCount    *int64 `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration *int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          *int64 `json:"eval_count,omitempty"`
	EvalDuration       *int64 `json:"eval_duration,omitempty"`
}

// EmbedRequest asks for one embedding vector per input string.
type EmbedRequest struct {
	Model     string         `json:"model"`
	Input     []string       `json:"input"`
	Truncate  *bool          `json:"truncate,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// EmbedResponse carries the produced vectors in input order.
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`

	TotalDuration   *int64 `json:"total_duration,omitempty"`
	LoadDuration    *int64 `json:"load_duration,omitempty"`
	PromptEvalCount *int64 `json:"prompt_eval_count,omitempty"`
}

type pullRequest struct {
	Model    string `json:"model"`
	Insecure bool   `json:"insecure,omitempty"`
	Stream   bool   `json:"stream"`
}

// PullStatus is the final status line of a non-streaming pull.
type PullStatus struct {
	Status string `json:"status"`
}
