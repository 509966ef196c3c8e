package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/relais/pkg/bus"
)

// startEchoService registers a bare listener that answers requests keyed on
// their payload: {"fail":"..."} produces the named error reply, anything
// else is echoed back.
func startEchoService(t *testing.T, mbus *bus.Bus, service string) {
	t.Helper()

	h := mbus.Register("echo")
	if err := mbus.Listen(h, service); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	quit := make(chan struct{})
	go func() {
		for {
			select {
			case env := <-h.Queue():
				if env.Kind != bus.KindRequest {
					continue
				}
				var probe struct {
					Fail string `json:"fail"`
				}
				json.Unmarshal(env.Request.Payload, &probe)
				switch probe.Fail {
				case "unreachable":
					env.Request.ReturnErrorToSender(bus.NewUnreachableError("backend connection error: connection refused"))
				case "protocol":
					env.Request.ReturnErrorToSender(bus.NewProtocolError("credentials contain characters not allowed in headers"))
				case "internal":
					env.Request.ReturnErrorToSender(bus.NewInternalError("unknown op"))
				default:
					env.Request.ReturnToSender(env.Request.Payload)
				}
			case <-quit:
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(quit)
		mbus.Deregister(h)
	})
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *bus.Bus) {
	t.Helper()
	mbus := bus.New()
	server := httptest.NewServer(New(mbus, cfg).Handler())
	t.Cleanup(server.Close)
	return server, mbus
}

func postBody(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) *bus.ServiceError {
	t.Helper()
	defer resp.Body.Close()
	var body bus.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error == nil {
		t.Fatal("error body has no error field")
	}
	return body.Error
}

func TestDispatchRepliesPayload(t *testing.T) {
	server, mbus := newTestServer(t, Config{})
	startEchoService(t, mbus, "ollama")

	resp := postBody(t, server.URL+"/v1/ollama", `{"op":"list_models"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if string(reply) != `{"op":"list_models"}` {
		t.Errorf("reply = %s, want the echoed payload", reply)
	}
}

func TestDispatchMapsServiceErrors(t *testing.T) {
	server, mbus := newTestServer(t, Config{})
	startEchoService(t, mbus, "ollama")

	tests := []struct {
		name       string
		payload    string
		wantStatus int
		wantCode   bus.ErrorCode
	}{
		{"unreachable backend", `{"fail":"unreachable"}`, http.StatusBadGateway, bus.ErrorCodeUnreachable},
		{"protocol violation", `{"fail":"protocol"}`, http.StatusBadGateway, bus.ErrorCodeProtocol},
		{"internal fault", `{"fail":"internal"}`, http.StatusInternalServerError, bus.ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postBody(t, server.URL+"/v1/ollama", tt.payload)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			serr := decodeError(t, resp)
			if serr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", serr.Code, tt.wantCode)
			}
			if serr.Message == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestDispatchUnknownService(t *testing.T) {
	server, _ := newTestServer(t, Config{})

	resp := postBody(t, server.URL+"/v1/nowhere", `{"op":"list_models"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	serr := decodeError(t, resp)
	if serr.Code != bus.ErrorCodeNoService {
		t.Errorf("code = %q, want %q", serr.Code, bus.ErrorCodeNoService)
	}
	if !strings.Contains(serr.Message, "nowhere") {
		t.Errorf("message %q does not name the service", serr.Message)
	}
}

func TestDispatchRejectsOversizedBody(t *testing.T) {
	server, mbus := newTestServer(t, Config{MaxBodySize: 64})
	startEchoService(t, mbus, "ollama")

	resp := postBody(t, server.URL+"/v1/ollama", strings.Repeat("x", 128))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	serr := decodeError(t, resp)
	if serr.Code != bus.ErrorCodeProtocol {
		t.Errorf("code = %q, want %q", serr.Code, bus.ErrorCodeProtocol)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, Config{})

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, []byte("ok\n")) {
		t.Errorf("body = %q, want ok", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, Config{MetricsEnabled: true})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "# HELP") {
		t.Error("metrics exposition is empty")
	}
}

func TestMetricsDisabled(t *testing.T) {
	server, _ := newTestServer(t, Config{MetricsEnabled: false})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
