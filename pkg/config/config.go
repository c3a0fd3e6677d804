// Package config provides unified configuration for the werkzeug gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (WERKZEUG_ prefix, plus E2B_API_KEY)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the werkzeug gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Reachability  ReachabilityConfig  `yaml:"reachability"`
	Messaging     MessagingConfig     `yaml:"messaging"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
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

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// SandboxConfig holds sandbox provisioning settings.
type SandboxConfig struct {
	Provider    string           `yaml:"provider"`     // "e2b" or "kubernetes", default: "e2b"
	IdleTimeout time.Duration    `yaml:"idle_timeout"` // default: 600s
	StepTimeout time.Duration    `yaml:"step_timeout"` // default: 120s
	ServeGrace  time.Duration    `yaml:"serve_grace"`  // default: 3s
	E2B         E2BConfig        `yaml:"e2b"`
	Kubernetes  KubernetesConfig `yaml:"kubernetes"`
}

// E2BConfig holds E2B cloud sandbox provider settings.
type E2BConfig struct {
	APIKey     string `yaml:"api_key"`      // also set via E2B_API_KEY env
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	APIURL     string `yaml:"api_url"`      // default: https://api.e2b.dev
	Template   string `yaml:"template"`     // default: "base"
}

// KubernetesConfig holds cluster sandbox provisioning settings.
type KubernetesConfig struct {
	Template     string        `yaml:"template"`      // SandboxClaim template name, required when provider=kubernetes
	Namespace    string        `yaml:"namespace"`     // default: "default"
	ClaimTimeout time.Duration `yaml:"claim_timeout"` // readiness wait, default: 120s
}

// ReachabilityConfig holds URL probe settings.
type ReachabilityConfig struct {
	Timeout        time.Duration `yaml:"timeout"`         // per-probe HTTP timeout, default: 10s
	DefaultSamples int           `yaml:"default_samples"` // latency sample count, default: 3
}

// MessagingConfig holds agent messaging settings.
type MessagingConfig struct {
	SourceID string `yaml:"source_id"` // identity attached to outgoing messages
}

// StorageConfig holds audit event storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // JWT settings for type=jwt
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`   // default: "sub"
	ScopesClaim string `yaml:"scopes_claim"` // default: "scope"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Sandbox: SandboxConfig{
			Provider:    "e2b",
			IdleTimeout: 600 * time.Second,
			StepTimeout: 120 * time.Second,
			ServeGrace:  3 * time.Second,
			E2B: E2BConfig{
				APIURL:   "https://api.e2b.dev",
				Template: "base",
			},
			Kubernetes: KubernetesConfig{
				Namespace:    "default",
				ClaimTimeout: 120 * time.Second,
			},
		},
		Reachability: ReachabilityConfig{
			Timeout:        10 * time.Second,
			DefaultSamples: 3,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
