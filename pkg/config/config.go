// Package config provides unified configuration for the relais processor.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults (the backend endpoint additionally falls back to
//     the OLLAMA_HOST / OLLAMA_URL environment variables)
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RELAIS_ prefix, .env files supported)
//  4. Validation
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/rhuss/relais/pkg/ollama"
)

// Config holds all configuration for the relais processor daemon.
type Config struct {
	Processor     ProcessorConfig     `yaml:"processor"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

// ProcessorConfig holds the settings of the processor instances.
type ProcessorConfig struct {
	Endpoint          string        `yaml:"endpoint"`            // backend base URL, may embed credentials
	Models            []string      `yaml:"models"`              // models provisioned at startup, in order
	AllowInsecurePull bool          `yaml:"allow_insecure_pull"` // default: false
	Services          []string      `yaml:"services"`            // bus service names, default: ["ollama"]
	Instances         int           `yaml:"instances"`           // default: 1
	BackendTimeout    time.Duration `yaml:"backend_timeout"`     // default: 120s
}

// EndpointURL parses the configured endpoint. Call after Validate has
// accepted the config.
func (p ProcessorConfig) EndpointURL() (*url.URL, error) {
	return url.Parse(p.Endpoint)
}

// GatewayConfig holds HTTP ingress settings.
type GatewayConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Processor: ProcessorConfig{
			Endpoint:       DefaultEndpoint(),
			Services:       []string{"ollama"},
			Instances:      1,
			BackendTimeout: 120 * time.Second,
		},
		Gateway: GatewayConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// DefaultEndpoint resolves the backend endpoint used when none is
// configured: OLLAMA_HOST is consulted first, then OLLAMA_URL; the first
// variable that is set wins. A set but unparseable value falls back to the
// well-known local address rather than the next variable.
func DefaultEndpoint() string {
	for _, key := range []string{"OLLAMA_HOST", "OLLAMA_URL"} {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if u, err := url.Parse(v); err == nil && u.Scheme != "" && u.Host != "" {
			return u.String()
		}
		return ollama.DefaultBaseURL
	}
	return ollama.DefaultBaseURL
}
