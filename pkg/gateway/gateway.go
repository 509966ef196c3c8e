// Package gateway serves HTTP ingress for the relay. It turns request
// bodies into bus calls addressed by path, relays replies, and exposes
// the health probe and Prometheus metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/relais/pkg/bus"
)

// Config holds configuration for the gateway handler.
type Config struct {
	// MaxBodySize caps accepted request bodies in bytes.
	MaxBodySize int64
	// MetricsEnabled mounts the Prometheus handler at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    4 << 20, // 4 MB
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Gateway routes inbound HTTP requests onto the bus.
type Gateway struct {
	mbus   *bus.Bus
	router chi.Router
	config Config
}

// New creates a Gateway dispatching onto the given bus. Zero config fields
// fall back to their defaults.
func New(mbus *bus.Bus, cfg Config) *Gateway {
	def := DefaultConfig()
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = def.MetricsPath
	}

	g := &Gateway{mbus: mbus, config: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/{service}", g.handleDispatch)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	g.router = r
	return g
}

// Handler returns the http.Handler for this gateway. Use it to integrate
// with an http.Server or test with httptest.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// handleDispatch forwards a request body to the named bus service and
// relays the reply. Service faults map onto HTTP status codes; the body
// keeps the structured error so callers can branch on the code.
func (g *Gateway) handleDispatch(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				bus.NewProtocolError("request body exceeds limit"))
			return
		}
		writeServiceError(w, bus.NewInternalError("reading request body: "+err.Error()))
		return
	}

	reply, err := g.mbus.Call(r.Context(), "gateway", service, payload)
	if err != nil {
		var serr *bus.ServiceError
		if errors.As(err, &serr) {
			writeServiceError(w, serr)
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away or timed out; nothing useful to write.
			slog.Debug("request aborted", "service", service, "error", err)
			return
		}
		writeServiceError(w, bus.NewInternalError(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(reply)
}

// writeServiceError maps the error code onto an HTTP status and writes the
// structured error body.
func writeServiceError(w http.ResponseWriter, serr *bus.ServiceError) {
	status := http.StatusInternalServerError
	switch serr.Code {
	case bus.ErrorCodeNoService:
		status = http.StatusNotFound
	case bus.ErrorCodeUnreachable, bus.ErrorCodeProtocol:
		status = http.StatusBadGateway
	}
	writeError(w, status, serr)
}

func writeError(w http.ResponseWriter, status int, serr *bus.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(bus.ErrorResponse{Error: serr})
}
