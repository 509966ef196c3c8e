package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrInvalidCredential is returned when credentials embedded in the endpoint
// URL cannot be carried in an Authorization header.
var ErrInvalidCredential = errors.New("ollama: endpoint credentials produce an invalid header value")

// Error describes a failed call against the backend API.
type Error struct {
	// Op is the operation that failed: "list", "show", "generate", "embed"
	// or "pull".
	Op string
	// StatusCode is the HTTP status of the backend answer, 0 when the
	// request never produced one.
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ollama %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ollama %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause, when any.
func (e *Error) Unwrap() error {
	return e.Err
}

// mapNetworkError converts a transport-level failure (connection refused,
// timeout, DNS resolution) into an *Error.
func mapNetworkError(op string, err error) *Error {
	return &Error{
		Op:      op,
		Message: fmt.Sprintf("backend connection error: %s", err.Error()),
		Err:     err,
	}
}

// mapHTTPError converts a non-2xx backend answer into an *Error, extracting
// the message from the standard {"error": "..."} body when present.
func mapHTTPError(op string, resp *http.Response) *Error {
	message := extractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("unexpected backend status %s", resp.Status)
	}
	return &Error{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// extractErrorMessage tries to parse the body as the backend's error shape
// and returns the message if found.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}

	return ""
}
