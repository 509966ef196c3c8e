package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/rhuss/relais/pkg/debug"
)

// DefaultBaseURL is the well-known local backend address used when no
// endpoint is configured.
const DefaultBaseURL = "http://localhost:11434"

const defaultTimeout = 120 * time.Second

// Config carries the construction parameters for a Client.
type Config struct {
	// Endpoint is the backend base URL. Credentials embedded in its
	// userinfo section become the Authorization header: a lone password
	// turns into "Bearer <password>", a user:password pair into HTTP basic
	// auth. Nil means DefaultBaseURL.
	Endpoint *url.URL

	// Timeout bounds every call including model pulls. Zero means the
	// 120 second default.
	Timeout time.Duration
}

// Client performs HTTP requests against the Ollama API. All methods are
// safe for concurrent use.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	authorization string
}

// NewClient creates a Client for the configured endpoint. It fails with
// ErrInvalidCredential when the URL credentials cannot form a valid header.
func NewClient(cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == nil {
		var err error
		endpoint, err = url.Parse(DefaultBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing default endpoint: %w", err)
		}
	}

	authorization, err := authorizationFromURL(endpoint)
	if err != nil {
		return nil, err
	}

	// Credentials travel in the header only, never in request URLs.
	base := *endpoint
	base.User = nil

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(base.String(), "/"),
		authorization: authorization,
	}, nil
}

// BaseURL returns the credential-free base URL requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// ListModels returns the models available locally on the backend.
func (c *Client) ListModels(ctx context.Context) ([]LocalModel, error) {
	var out listModelsResponse
	if err := c.do(ctx, "list", http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ShowModel returns the detailed description of a single model.
func (c *Client) ShowModel(ctx context.Context, name string) (*ModelInfo, error) {
	var out ModelInfo
	if err := c.do(ctx, "show", http.MethodPost, "/api/show", showRequest{Model: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate performs one non-streaming text generation.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	reqCopy := *req
	reqCopy.Stream = false

	var out GenerateResponse
	if err := c.do(ctx, "generate", http.MethodPost, "/api/generate", &reqCopy, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Embed produces one embedding vector per input string.
func (c *Client) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	var out EmbedResponse
	if err := c.do(ctx, "embed", http.MethodPost, "/api/embed", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pull downloads a model onto the backend, blocking until it finishes.
// insecure allows pulls from registries without a valid TLS chain.
func (c *Client) Pull(ctx context.Context, name string, insecure bool) (*PullStatus, error) {
	var out PullStatus
	if err := c.do(ctx, "pull", http.MethodPost, "/api/pull", pullRequest{Model: name, Insecure: insecure, Stream: false}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Message: fmt.Sprintf("marshaling request: %s", err.Error()), Err: err}
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Message: fmt.Sprintf("building request: %s", err.Error()), Err: err}
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.authorization != "" {
		httpReq.Header.Set("Authorization", c.authorization)
	}

	debug.Log("ollama", "backend call", "op", op, "method", method, "path", path)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return mapNetworkError(op, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return mapHTTPError(op, httpResp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return &Error{Op: op, Message: fmt.Sprintf("parsing backend response: %s", err.Error()), Err: err}
	}
	return nil
}

// authorizationFromURL derives the Authorization header value from URL
// userinfo: password only means a bearer token, user and password mean
// HTTP basic auth. Without a password there is no credential, so a bare
// username produces no header.
func authorizationFromURL(u *url.URL) (string, error) {
	if u.User == nil {
		return "", nil
	}
	password, _ := u.User.Password()
	if password == "" {
		return "", nil
	}

	var header string
	if username := u.User.Username(); username == "" {
		header = "Bearer " + password
	} else {
		header = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	}
	if !httpguts.ValidHeaderFieldValue(header) {
		return "", fmt.Errorf("%w: credentials contain characters not allowed in headers", ErrInvalidCredential)
	}
	return header, nil
}
