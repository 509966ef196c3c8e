package jsonmsg

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/relais/pkg/bus"
	"github.com/rhuss/relais/pkg/ollama"
	"github.com/rhuss/relais/pkg/processor"
)

func TestTranslateRequestListModels(t *testing.T) {
	a := New()
	op, err := a.TranslateRequest("ollama", []byte(`{"op":"list_models"}`))
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}
	if _, ok := op.(processor.ListModelsOp); !ok {
		t.Errorf("operation = %T, want ListModelsOp", op)
	}
}

func TestTranslateRequestModelInfo(t *testing.T) {
	a := New()
	op, err := a.TranslateRequest("ollama", []byte(`{"op":"model_info","model":"llama3"}`))
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}
	info, ok := op.(processor.ModelInfoOp)
	if !ok {
		t.Fatalf("operation = %T, want ModelInfoOp", op)
	}
	if info.Name != "llama3" {
		t.Errorf("Name = %q, want %q", info.Name, "llama3")
	}
}

func TestTranslateRequestModelInfoRequiresModel(t *testing.T) {
	a := New()
	if _, err := a.TranslateRequest("ollama", []byte(`{"op":"model_info"}`)); err == nil {
		t.Error("TranslateRequest expected error for missing model, got nil")
	}
}

func TestTranslateRequestGenerate(t *testing.T) {
	a := New()
	payload := []byte(`{
		"op": "generate",
		"model": "llama3",
		"prompt": "why is the sky blue?",
		"system": "be brief",
		"format": "json",
		"options": {"temperature": 0.2},
		"context": [1, 2, 3]
	}`)

	op, err := a.TranslateRequest("ollama", payload)
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}
	gen, ok := op.(processor.GenerateOp)
	if !ok {
		t.Fatalf("operation = %T, want GenerateOp", op)
	}
	if gen.Req.Model != "llama3" {
		t.Errorf("Model = %q", gen.Req.Model)
	}
	if gen.Req.Prompt != "why is the sky blue?" {
		t.Errorf("Prompt = %q", gen.Req.Prompt)
	}
	if gen.Req.System != "be brief" {
		t.Errorf("System = %q", gen.Req.System)
	}
	if gen.Req.Format != "json" {
		t.Errorf("Format = %q", gen.Req.Format)
	}
	if gen.Req.Options["temperature"] != 0.2 {
		t.Errorf("Options = %v", gen.Req.Options)
	}
	if len(gen.Req.Context) != 3 {
		t.Errorf("Context = %v", gen.Req.Context)
	}
}

func TestTranslateRequestEmbed(t *testing.T) {
	a := New()
	op, err := a.TranslateRequest("embeddings", []byte(`{"op":"embed","model":"nomic-embed-text","input":["one","two"]}`))
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}
	emb, ok := op.(processor.EmbedOp)
	if !ok {
		t.Fatalf("operation = %T, want EmbedOp", op)
	}
	if emb.Req.Model != "nomic-embed-text" {
		t.Errorf("Model = %q", emb.Req.Model)
	}
	if len(emb.Req.Input) != 2 || emb.Req.Input[1] != "two" {
		t.Errorf("Input = %v", emb.Req.Input)
	}
}

func TestTranslateRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"invalid json", `{"op":`, "decoding payload"},
		{"missing op", `{"model":"llama3"}`, "no op"},
		{"unknown op", `{"op":"chat"}`, `unknown op "chat"`},
		{"empty payload", ``, "decoding payload"},
	}

	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.TranslateRequest("ollama", []byte(tt.payload))
			if err == nil {
				t.Fatalf("TranslateRequest expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestTranslateResponseModels(t *testing.T) {
	a := New()
	out, err := a.TranslateResponse(processor.ModelsResult{
		Models: []ollama.LocalModel{{Name: "llama3", Size: 42}},
	})
	if err != nil {
		t.Fatalf("TranslateResponse: %v", err)
	}

	var got struct {
		Op     string              `json:"op"`
		Models []ollama.LocalModel `json:"models"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshalling reply: %v", err)
	}
	if got.Op != "list_models" {
		t.Errorf("op = %q, want %q", got.Op, "list_models")
	}
	if len(got.Models) != 1 || got.Models[0].Name != "llama3" {
		t.Errorf("models = %v", got.Models)
	}
}

func TestTranslateResponseModelInfo(t *testing.T) {
	a := New()
	out, err := a.TranslateResponse(processor.ModelInfoResult{
		Name: "llama3",
		Info: &ollama.ModelInfo{Parameters: "stop=</s>"},
	})
	if err != nil {
		t.Fatalf("TranslateResponse: %v", err)
	}

	var got struct {
		Op    string            `json:"op"`
		Model string            `json:"model"`
		Info  *ollama.ModelInfo `json:"info"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshalling reply: %v", err)
	}
	if got.Op != "model_info" || got.Model != "llama3" {
		t.Errorf("op = %q, model = %q", got.Op, got.Model)
	}
	if got.Info == nil || got.Info.Parameters != "stop=</s>" {
		t.Errorf("info = %+v", got.Info)
	}
}

func TestTranslateResponseGenerateInlinesFields(t *testing.T) {
	a := New()
	count := int64(7)
	out, err := a.TranslateResponse(processor.GenerateResult{
		Resp: &ollama.GenerateResponse{
			Model:     "llama3",
			Response:  "blue because of Rayleigh scattering",
			Done:      true,
			EvalCount: &count,
		},
	})
	if err != nil {
		t.Fatalf("TranslateResponse: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshalling reply: %v", err)
	}
	if got["op"] != "generate" {
		t.Errorf("op = %v", got["op"])
	}
	if got["response"] != "blue because of Rayleigh scattering" {
		t.Errorf("response = %v", got["response"])
	}
	if got["done"] != true {
		t.Errorf("done = %v", got["done"])
	}
	if got["eval_count"] != float64(7) {
		t.Errorf("eval_count = %v", got["eval_count"])
	}
}

func TestTranslateResponseEmbed(t *testing.T) {
	a := New()
	out, err := a.TranslateResponse(processor.EmbedResult{
		Resp: &ollama.EmbedResponse{
			Model:      "nomic-embed-text",
			Embeddings: [][]float32{{0.5, -0.5}},
		},
	})
	if err != nil {
		t.Fatalf("TranslateResponse: %v", err)
	}

	var got struct {
		Op         string      `json:"op"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshalling reply: %v", err)
	}
	if got.Op != "embed" {
		t.Errorf("op = %q", got.Op)
	}
	if len(got.Embeddings) != 1 || got.Embeddings[0][0] != 0.5 {
		t.Errorf("embeddings = %v", got.Embeddings)
	}
}

func TestTranslateResponseUnsupportedResult(t *testing.T) {
	a := New()
	if _, err := a.TranslateResponse(nil); err == nil {
		t.Error("TranslateResponse expected error for nil result, got nil")
	}
}

func TestFactory(t *testing.T) {
	a, err := Factory(nil)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if a == nil {
		t.Fatal("Factory returned nil adaptor")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// mockOllama serves a minimal deterministic backend for round-trip tests.
func mockOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3", "model": "llama3", "size": 1024},
			},
		})
	})
	mux.HandleFunc("POST /api/show", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"parameters":   "stop=</s>",
			"capabilities": []string{"completion"},
			"details":      map[string]any{"family": "llama"},
		})
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("backend received stream=true, want forced non-streaming")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":             req.Model,
			"response":          "echo: " + req.Prompt,
			"done":              true,
			"prompt_eval_count": 3,
			"eval_count":        5,
			"total_duration":    1500000000,
		})
	})
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.EmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		vectors := make([][]float32, len(req.Input))
		for i := range req.Input {
			vectors[i] = []float32{float32(i), float32(len(req.Input[i]))}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": vectors,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestEndToEndRoundTrip drives payloads through bus, processor, adaptor
// and HTTP client against a mock backend.
func TestEndToEndRoundTrip(t *testing.T) {
	srv := mockOllama(t)
	endpoint, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	client, err := ollama.NewClient(ollama.Config{Endpoint: endpoint, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	mbus := bus.New()
	p, err := processor.New(client, mbus, Factory, processor.Settings{
		Name:     "relais-0",
		Services: []string{"ollama"},
		Models:   []string{"llama3"},
	}, nil)
	if err != nil {
		t.Fatalf("processor.New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && mbus.Services()["ollama"] == 0 {
		time.Sleep(time.Millisecond)
	}
	if mbus.Services()["ollama"] == 0 {
		t.Fatal("processor never started listening")
	}

	ctx := context.Background()

	t.Run("list models", func(t *testing.T) {
		reply, err := mbus.Call(ctx, "test", "ollama", []byte(`{"op":"list_models"}`))
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		var got struct {
			Models []ollama.LocalModel `json:"models"`
		}
		if err := json.Unmarshal(reply, &got); err != nil {
			t.Fatalf("unmarshalling reply: %v", err)
		}
		if len(got.Models) != 1 || got.Models[0].Name != "llama3" {
			t.Errorf("models = %v", got.Models)
		}
	})

	t.Run("model info", func(t *testing.T) {
		reply, err := mbus.Call(ctx, "test", "ollama", []byte(`{"op":"model_info","model":"llama3"}`))
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		var got struct {
			Model string            `json:"model"`
			Info  *ollama.ModelInfo `json:"info"`
		}
		if err := json.Unmarshal(reply, &got); err != nil {
			t.Fatalf("unmarshalling reply: %v", err)
		}
		if got.Model != "llama3" || got.Info == nil || got.Info.Parameters != "stop=</s>" {
			t.Errorf("reply = %s", reply)
		}
	})

	t.Run("generate", func(t *testing.T) {
		reply, err := mbus.Call(ctx, "test", "ollama", []byte(`{"op":"generate","model":"llama3","prompt":"hello"}`))
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		var got struct {
			Response  string `json:"response"`
			Done      bool   `json:"done"`
			EvalCount *int64 `json:"eval_count"`
		}
		if err := json.Unmarshal(reply, &got); err != nil {
			t.Fatalf("unmarshalling reply: %v", err)
		}
		if got.Response != "echo: hello" || !got.Done {
			t.Errorf("reply = %s", reply)
		}
		if got.EvalCount == nil || *got.EvalCount != 5 {
			t.Errorf("eval_count = %v, want 5", got.EvalCount)
		}
	})

	t.Run("embed", func(t *testing.T) {
		reply, err := mbus.Call(ctx, "test", "ollama", []byte(`{"op":"embed","model":"llama3","input":["a","bb"]}`))
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		var got struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.Unmarshal(reply, &got); err != nil {
			t.Fatalf("unmarshalling reply: %v", err)
		}
		if len(got.Embeddings) != 2 {
			t.Fatalf("embeddings = %v, want 2 vectors", got.Embeddings)
		}
		if got.Embeddings[1][1] != 2 {
			t.Errorf("second vector = %v", got.Embeddings[1])
		}
	})

	t.Run("unknown op becomes internal error", func(t *testing.T) {
		_, err := mbus.Call(ctx, "test", "ollama", []byte(`{"op":"chat"}`))
		var serr *bus.ServiceError
		if !errors.As(err, &serr) {
			t.Fatalf("Call error = %v, want *bus.ServiceError", err)
		}
		if serr.Code != bus.ErrorCodeInternal {
			t.Errorf("Code = %q, want %q", serr.Code, bus.ErrorCodeInternal)
		}
	})

	mbus.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned %v, want nil after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}
