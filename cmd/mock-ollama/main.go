// Command mock-ollama runs a deterministic Ollama-compatible backend
// for conformance testing. It answers the tags, show, generate, embed
// and pull endpoints with predictable content so relay behavior can be
// verified without a real model server. Pulled models join the in-memory
// registry, which makes the startup provisioning flow testable end to end.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 11434)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "11434"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("GET /api/tags", handleTags)
	mux.HandleFunc("POST /api/show", handleShow)
	mux.HandleFunc("POST /api/generate", handleGenerate)
	mux.HandleFunc("POST /api/embed", handleEmbed)
	mux.HandleFunc("POST /api/pull", handlePull)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock ollama starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock ollama failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock ollama shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Model registry ---

var (
	registryMu sync.Mutex
	registry   = map[string]bool{
		"llama3:latest":     true,
		"all-minilm:latest": true,
	}
)

func hasModel(name string) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry[name] {
		return true
	}
	// Bare names match their :latest tag, the way the real server resolves.
	return !strings.Contains(name, ":") && registry[name+":latest"]
}

func addModel(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if !strings.Contains(name, ":") {
		name += ":latest"
	}
	registry[name] = true
}

func listModels() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// --- Wire types ---

type modelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

type tagEntry struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    modelDetails `json:"details"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system"`
	Context []int          `json:"context"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Response           string    `json:"response"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason"`
	Context            []int     `json:"context"`
	TotalDuration      int64     `json:"total_duration"`
	LoadDuration       int64     `json:"load_duration"`
	PromptEvalCount    int64     `json:"prompt_eval_count"`
	PromptEvalDuration int64     `json:"prompt_eval_duration"`
	EvalCount          int64     `json:"eval_count"`
	EvalDuration       int64     `json:"eval_duration"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float32 `json:"embeddings"`
	TotalDuration   int64       `json:"total_duration"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
}

type pullRequestBody struct {
	Model    string `json:"model"`
	Insecure bool   `json:"insecure"`
	Stream   bool   `json:"stream"`
}

// --- Handlers ---

func handleTags(w http.ResponseWriter, r *http.Request) {
	names := listModels()
	entries := make([]tagEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, tagEntry{
			Name:       name,
			Model:      name,
			ModifiedAt: time.Now().Add(-24 * time.Hour),
			Size:       4_661_224_676,
			Digest:     "sha256:mock" + name,
			Details: modelDetails{
				Format:            "gguf",
				Family:            "llama",
				ParameterSize:     "8B",
				QuantizationLevel: "Q4_0",
			},
		})
	}
	writeJSON(w, map[string]any{"models": entries})
}

func handleShow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !hasModel(req.Model) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model '%s' not found", req.Model))
		return
	}

	writeJSON(w, map[string]any{
		"modelfile":  "FROM " + req.Model,
		"parameters": "stop \"</s>\"",
		"template":   "{{ .Prompt }}",
		"details": modelDetails{
			Format:            "gguf",
			Family:            "llama",
			ParameterSize:     "8B",
			QuantizationLevel: "Q4_0",
		},
		"model_info": map[string]any{
			"general.architecture": "llama",
			"llama.context_length": 8192,
		},
		"capabilities": []string{"completion"},
	})
}

func handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Stream {
		writeError(w, http.StatusBadRequest, "streaming is not supported by the mock")
		return
	}
	if !hasModel(req.Model) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model '%s' not found", req.Model))
		return
	}

	text := respondTo(req.Prompt, req.System)
	promptTokens := int64(len(strings.Fields(req.System + " " + req.Prompt)))
	evalTokens := int64(len(strings.Fields(text)))

	writeJSON(w, generateResponse{
		Model:              req.Model,
		CreatedAt:          time.Now().UTC(),
		Response:           text,
		Done:               true,
		DoneReason:         "stop",
		Context:            append(req.Context, 1, 2, 3),
		TotalDuration:      1_500_000_000,
		LoadDuration:       200_000_000,
		PromptEvalCount:    promptTokens,
		PromptEvalDuration: 300_000_000,
		EvalCount:          evalTokens,
		EvalDuration:       1_000_000_000,
	})
}

// respondTo picks the deterministic answer for a prompt.
func respondTo(prompt, system string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "count from 1 to 5"):
		return "1, 2, 3, 4, 5"
	case strings.Contains(strings.ToLower(system), "pirate"):
		return "Ahoy there, matey! Welcome aboard!"
	case prompt == "":
		return ""
	default:
		return "echo: " + prompt
	}
}

func handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !hasModel(req.Model) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model '%s' not found", req.Model))
		return
	}

	vectors := make([][]float32, len(req.Input))
	tokens := int64(0)
	for i, input := range req.Input {
		vectors[i] = []float32{float32(len(input)), float32(i + 1), 0.25, -0.25}
		tokens += int64(len(strings.Fields(input)))
	}

	writeJSON(w, embedResponse{
		Model:           req.Model,
		Embeddings:      vectors,
		TotalDuration:   80_000_000,
		PromptEvalCount: tokens,
	})
}

func handlePull(w http.ResponseWriter, r *http.Request) {
	var req pullRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	slog.Info("pull requested", "model", req.Model, "insecure", req.Insecure)
	addModel(req.Model)
	writeJSON(w, map[string]string{"status": "success"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
