// Command demo walks through the relay pipeline end to end: it starts an
// in-process deterministic backend, runs one processor against it, and
// shows request, reply and error round trips over the bus.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/relais/pkg/adaptor/jsonmsg"
	"github.com/rhuss/relais/pkg/bus"
	"github.com/rhuss/relais/pkg/ollama"
	"github.com/rhuss/relais/pkg/processor"
)

func main() {
	fmt.Println("=== relais pipeline demo ===")
	fmt.Println()

	// 1. In-process backend with llama3 present; all-minilm arrives by pull.
	backend := newDemoBackend()
	server := httptest.NewServer(backend)
	defer server.Close()
	fmt.Printf("[1] Backend running at %s (models: %s)\n", server.URL, strings.Join(backend.names(), ", "))

	endpoint, _ := url.Parse(server.URL)
	client, err := ollama.NewClient(ollama.Config{Endpoint: endpoint, Timeout: 10 * time.Second})
	if err != nil {
		fmt.Printf("Client setup FAILED: %v\n", err)
		return
	}
	defer client.Close()

	// 2. Bus plus one processor; provisioning pulls the missing model.
	mbus := bus.New()
	p, err := processor.New(client, mbus, jsonmsg.Factory, processor.Settings{
		Name:     "demo-0",
		Services: []string{"ollama"},
		Models:   []string{"llama3", "all-minilm"},
	}, nil)
	if err != nil {
		fmt.Printf("Processor setup FAILED: %v\n", err)
		return
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	if !waitForService(mbus, "ollama") {
		fmt.Println("Processor did not register in time")
		return
	}
	fmt.Printf("\n[2] Processor registered, service table: %v\n", mbus.Services())
	fmt.Printf("    Backend models after provisioning: %s\n", strings.Join(backend.names(), ", "))

	// 3. One round trip per operation.
	roundTrip(mbus, "[3] List models", `{"op":"list_models"}`)
	roundTrip(mbus, "[4] Model info", `{"op":"model_info","model":"llama3"}`)
	roundTrip(mbus, "[5] Generate", `{"op":"generate","model":"llama3","prompt":"Count from 1 to 5."}`)
	roundTrip(mbus, "[6] Embed", `{"op":"embed","model":"all-minilm","input":["stop word","relay"]}`)

	// 4. Faults surface as structured error replies.
	fmt.Println("\n[7] Error replies:")
	for _, bad := range []struct {
		what    string
		service string
		payload string
	}{
		{"unknown op", "ollama", `{"op":"chat"}`},
		{"missing model name", "ollama", `{"op":"model_info"}`},
		{"unknown service", "nowhere", `{"op":"list_models"}`},
	} {
		_, err := mbus.Call(context.Background(), "demo", bad.service, []byte(bad.payload))
		var serr *bus.ServiceError
		if errors.As(err, &serr) {
			fmt.Printf("    %-20s -> %s: %s\n", bad.what, serr.Code, serr.Message)
		} else {
			fmt.Printf("    %-20s -> unexpected: %v\n", bad.what, err)
		}
	}

	// 5. Graceful shutdown: the processor drains and leaves the bus.
	mbus.Shutdown()
	if err := <-done; err != nil {
		fmt.Printf("\nShutdown FAILED: %v\n", err)
		return
	}
	fmt.Printf("\n[8] Shutdown complete, service table: %v\n", mbus.Services())

	fmt.Println("\n=== demo complete ===")
}

func roundTrip(mbus *bus.Bus, header, payload string) {
	fmt.Printf("\n%s\n    request: %s\n", header, payload)
	reply, err := mbus.Call(context.Background(), "demo", "ollama", []byte(payload))
	if err != nil {
		fmt.Printf("    FAILED: %v\n", err)
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, reply, "    ", "  "); err != nil {
		fmt.Printf("    reply: %s\n", reply)
		return
	}
	fmt.Printf("    reply: %s\n", pretty.String())
}

func waitForService(mbus *bus.Bus, service string) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if mbus.Services()[service] > 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// demoBackend is a minimal deterministic stand-in for the real server.
type demoBackend struct {
	mu     sync.Mutex
	models map[string]bool
	mux    *http.ServeMux
}

func newDemoBackend() *demoBackend {
	b := &demoBackend{models: map[string]bool{"llama3": true}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", b.tags)
	mux.HandleFunc("POST /api/show", b.show)
	mux.HandleFunc("POST /api/generate", b.generate)
	mux.HandleFunc("POST /api/embed", b.embed)
	mux.HandleFunc("POST /api/pull", b.pull)
	b.mux = mux
	return b
}

func (b *demoBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func (b *demoBackend) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.models))
	for name := range b.models {
		names = append(names, name)
	}
	return names
}

func (b *demoBackend) tags(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	entries := []entry{}
	for _, name := range b.names() {
		entries = append(entries, entry{Name: name, Size: 1024})
	}
	json.NewEncoder(w).Encode(map[string]any{"models": entries})
}

func (b *demoBackend) show(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	json.NewEncoder(w).Encode(map[string]any{
		"modelfile":    "FROM " + req.Model,
		"capabilities": []string{"completion"},
	})
}

func (b *demoBackend) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	text := "echo: " + req.Prompt
	if strings.Contains(strings.ToLower(req.Prompt), "count from 1 to 5") {
		text = "1, 2, 3, 4, 5"
	}
	json.NewEncoder(w).Encode(map[string]any{
		"model":      req.Model,
		"response":   text,
		"done":       true,
		"eval_count": 5,
	})
}

func (b *demoBackend) embed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	vectors := make([][]float32, len(req.Input))
	for i, input := range req.Input {
		vectors[i] = []float32{float32(len(input)), float32(i + 1)}
	}
	json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vectors})
}

func (b *demoBackend) pull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	b.models[req.Model] = true
	b.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}
