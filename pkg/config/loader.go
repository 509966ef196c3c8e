package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envOverrides mirrors the RELAIS_* environment surface. Only variables
// that are actually set override the loaded configuration.
type envOverrides struct {
	Endpoint          string        `env:"RELAIS_ENDPOINT"`
	Models            []string      `env:"RELAIS_MODELS" envSeparator:","`
	AllowInsecurePull *bool         `env:"RELAIS_ALLOW_INSECURE_PULL"`
	Services          []string      `env:"RELAIS_SERVICES" envSeparator:","`
	Instances         int           `env:"RELAIS_INSTANCES"`
	BackendTimeout    time.Duration `env:"RELAIS_BACKEND_TIMEOUT"`
	Port              int           `env:"RELAIS_PORT"`
	LogLevel          string        `env:"RELAIS_LOG_LEVEL"`
	Debug             string        `env:"RELAIS_DEBUG"`
}

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, RELAIS_CONFIG env, ./config.yaml,
//     /etc/relais/config.yaml)
//  3. Environment variable overrides (a .env file is honored when present)
//  4. Validation
func Load(configPath string) (*Config, error) {
	// .env files keep local development close to the deployed layout.
	_ = godotenv.Load()

	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. RELAIS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/relais/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check RELAIS_CONFIG env var.
	if envPath := os.Getenv("RELAIS_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/relais/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps RELAIS_* environment variables onto config fields.
func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return err
	}

	if ov.Endpoint != "" {
		cfg.Processor.Endpoint = ov.Endpoint
	}
	if ov.Models != nil {
		cfg.Processor.Models = ov.Models
	}
	if ov.AllowInsecurePull != nil {
		cfg.Processor.AllowInsecurePull = *ov.AllowInsecurePull
	}
	if ov.Services != nil {
		cfg.Processor.Services = ov.Services
	}
	if ov.Instances != 0 {
		cfg.Processor.Instances = ov.Instances
	}
	if ov.BackendTimeout != 0 {
		cfg.Processor.BackendTimeout = ov.BackendTimeout
	}
	if ov.Port != 0 {
		cfg.Gateway.Port = ov.Port
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if ov.Debug != "" {
		cfg.Log.Debug = ov.Debug
	}
	return nil
}
