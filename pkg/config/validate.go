package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// processor.endpoint must be a usable base URL.
	if c.Processor.Endpoint == "" {
		errs = append(errs, fmt.Errorf("processor.endpoint is required"))
	} else if u, err := url.Parse(c.Processor.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("processor.endpoint is not a valid URL: %v", err))
	} else {
		switch u.Scheme {
		case "http", "https":
			// valid
		default:
			errs = append(errs, fmt.Errorf("processor.endpoint scheme must be \"http\" or \"https\", got %q", u.Scheme))
		}
		if u.Host == "" {
			errs = append(errs, fmt.Errorf("processor.endpoint has no host"))
		}
	}

	// processor.services must name at least one non-empty service.
	if len(c.Processor.Services) == 0 {
		errs = append(errs, fmt.Errorf("processor.services must name at least one service"))
	}
	for i, svc := range c.Processor.Services {
		if strings.TrimSpace(svc) == "" {
			errs = append(errs, fmt.Errorf("processor.services[%d] is empty", i))
		}
	}

	for i, m := range c.Processor.Models {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Errorf("processor.models[%d] is empty", i))
		}
	}

	if c.Processor.Instances <= 0 {
		errs = append(errs, fmt.Errorf("processor.instances must be > 0, got %d", c.Processor.Instances))
	}

	if c.Processor.BackendTimeout < 0 {
		errs = append(errs, fmt.Errorf("processor.backend_timeout must not be negative, got %s", c.Processor.BackendTimeout))
	}

	if c.Gateway.Port <= 0 {
		errs = append(errs, fmt.Errorf("gateway.port must be > 0, got %d", c.Gateway.Port))
	}

	return errors.Join(errs...)
}
