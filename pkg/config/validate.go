package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// sandbox.provider must be a known value.
	switch c.Sandbox.Provider {
	case "e2b", "kubernetes":
		// valid
	default:
		errs = append(errs, fmt.Errorf("sandbox.provider must be \"e2b\" or \"kubernetes\", got %q", c.Sandbox.Provider))
	}

	// If sandbox.provider is "kubernetes", a claim template is required.
	if c.Sandbox.Provider == "kubernetes" && c.Sandbox.Kubernetes.Template == "" {
		errs = append(errs, fmt.Errorf("sandbox.kubernetes.template is required when sandbox.provider is \"kubernetes\""))
	}

	if c.Sandbox.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.idle_timeout must be > 0, got %s", c.Sandbox.IdleTimeout))
	}
	if c.Sandbox.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.step_timeout must be > 0, got %s", c.Sandbox.StepTimeout))
	}

	if c.Reachability.DefaultSamples <= 0 {
		errs = append(errs, fmt.Errorf("reachability.default_samples must be > 0, got %d", c.Reachability.DefaultSamples))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	// If auth.type is "jwt", a JWKS URL is required.
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	return errors.Join(errs...)
}
