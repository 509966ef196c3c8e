// Command relais runs the bus-to-backend relay daemon: N processor
// instances bridging bus services to an Ollama-compatible backend, plus
// an HTTP gateway for request ingress, health and metrics.
//
// Configuration is layered: built-in defaults, then a YAML file
// (-config flag, RELAIS_CONFIG, ./config.yaml or /etc/relais/config.yaml),
// then RELAIS_* environment variables. The backend endpoint additionally
// honors OLLAMA_HOST and OLLAMA_URL when unset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rhuss/relais/pkg/adaptor/jsonmsg"
	"github.com/rhuss/relais/pkg/bus"
	"github.com/rhuss/relais/pkg/config"
	"github.com/rhuss/relais/pkg/debug"
	"github.com/rhuss/relais/pkg/gateway"
	"github.com/rhuss/relais/pkg/observability"
	"github.com/rhuss/relais/pkg/ollama"
	"github.com/rhuss/relais/pkg/processor"
)

// drainTimeout bounds how long shutdown waits for in-flight envelopes.
const drainTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("relais failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init(cfg.Log.Debug, cfg.Log.Level)

	endpoint, err := cfg.Processor.EndpointURL()
	if err != nil {
		return fmt.Errorf("parsing endpoint: %w", err)
	}

	client, err := ollama.NewClient(ollama.Config{
		Endpoint: endpoint,
		Timeout:  cfg.Processor.BackendTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}
	defer client.Close()

	mbus := bus.New()
	recorder := observability.NewRecorder()

	// Processors live on their own context so a signal triggers the
	// graceful bus shutdown first; cancellation is the hard stop after
	// the drain timeout.
	runCtx, hardStop := context.WithCancel(context.Background())
	defer hardStop()

	var wg sync.WaitGroup
	procErr := make(chan error, cfg.Processor.Instances)
	for i := 0; i < cfg.Processor.Instances; i++ {
		p, err := processor.New(client, mbus, jsonmsg.Factory, processor.Settings{
			Name:              fmt.Sprintf("relais-%d", i),
			Services:          cfg.Processor.Services,
			Models:            cfg.Processor.Models,
			AllowInsecurePull: cfg.Processor.AllowInsecurePull,
		}, recorder)
		if err != nil {
			return fmt.Errorf("creating processor %d: %w", i, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				procErr <- err
			}
		}()
	}

	gw := gateway.New(mbus, gateway.Config{
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:      gw.Handler(),
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("gateway starting",
			"port", cfg.Gateway.Port,
			"backend", client.BaseURL(),
			"services", cfg.Processor.Services,
			"instances", cfg.Processor.Instances,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
	case err := <-procErr:
		return fmt.Errorf("processor failed: %w", err)
	case err := <-httpErr:
		return fmt.Errorf("gateway failed: %w", err)
	}

	// Graceful path: broadcast shutdown and let each instance finish its
	// current envelope. Escalate to cancellation if the drain stalls.
	mbus.Shutdown()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		slog.Warn("processors did not drain in time, cancelling")
		hardStop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
