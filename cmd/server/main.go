// Command server runs the werkzeug infrastructure tool gateway.
//
// Configuration is loaded from a YAML file (see WERKZEUG_CONFIG) with
// environment variable overrides:
//
//	WERKZEUG_CONFIG           - Config file path (default: ./config.yaml)
//	WERKZEUG_PORT             - Listen port (default: 8080)
//	WERKZEUG_SANDBOX_PROVIDER - Sandbox provider: "e2b" or "kubernetes"
//	E2B_API_KEY               - E2B cloud credential
//	WERKZEUG_STORAGE          - Audit storage: "memory" or "postgres"
//	WERKZEUG_AUTH_TYPE        - Auth: "none", "apikey", or "jwt"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
	clientconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/werkzeug/pkg/auth"
	"github.com/rhuss/werkzeug/pkg/auth/apikey"
	authjwt "github.com/rhuss/werkzeug/pkg/auth/jwt"
	"github.com/rhuss/werkzeug/pkg/auth/noop"
	"github.com/rhuss/werkzeug/pkg/config"
	"github.com/rhuss/werkzeug/pkg/debug"
	"github.com/rhuss/werkzeug/pkg/server"
	"github.com/rhuss/werkzeug/pkg/storage"
	"github.com/rhuss/werkzeug/pkg/storage/memory"
	"github.com/rhuss/werkzeug/pkg/storage/postgres"
	"github.com/rhuss/werkzeug/pkg/tools/builtins/messaging"
	"github.com/rhuss/werkzeug/pkg/tools/builtins/reachability"
	"github.com/rhuss/werkzeug/pkg/tools/builtins/sandbox"
	"github.com/rhuss/werkzeug/pkg/tools/builtins/sandbox/e2b"
	"github.com/rhuss/werkzeug/pkg/tools/builtins/sandbox/kubernetes"
	"github.com/rhuss/werkzeug/pkg/tools/registry"
	"github.com/rhuss/werkzeug/pkg/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	debug.Init(os.Getenv("WERKZEUG_DEBUG"), os.Getenv("WERKZEUG_LOG_LEVEL"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Create the audit event store.
	events, err := buildEventStore(cfg)
	if err != nil {
		return fmt.Errorf("creating event store: %w", err)
	}
	if events != nil {
		defer events.Close()
	}

	// Create the sandbox provisioner.
	provisioner, err := buildProvisioner(cfg)
	if err != nil {
		return fmt.Errorf("creating sandbox provisioner: %w", err)
	}

	// Assemble the builtin tool providers.
	reg := registry.New()
	reg.Register(sandbox.New(provisioner, events, sandbox.Config{
		IdleTimeout: cfg.Sandbox.IdleTimeout,
		StepTimeout: cfg.Sandbox.StepTimeout,
		ServeGrace:  cfg.Sandbox.ServeGrace,
	}))
	reg.Register(reachability.New(reachability.Config{
		Timeout:        cfg.Reachability.Timeout,
		DefaultSamples: cfg.Reachability.DefaultSamples,
	}))
	reg.Register(messaging.New(messaging.NewNotifier(nil, cfg.Messaging.SourceID)))
	defer reg.Close()

	// Build the authentication chain.
	chain, err := buildAuthChain(cfg)
	if err != nil {
		return fmt.Errorf("creating auth chain: %w", err)
	}

	handler := server.NewHandler(server.Options{
		Registry:       reg,
		AuthChain:      chain,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
	})

	srv := transport.NewServer(handler,
		transport.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transport.WithReadTimeout(cfg.Server.ReadTimeout),
		transport.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	slog.Info("werkzeug gateway starting",
		"port", cfg.Server.Port,
		"sandbox_provider", cfg.Sandbox.Provider,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)

	return srv.ListenAndServe()
}

// buildEventStore creates the audit event store from configuration.
func buildEventStore(cfg *config.Config) (storage.EventStore, error) {
	switch cfg.Storage.Type {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	default:
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	}
}

// buildProvisioner creates the sandbox provisioner from configuration.
func buildProvisioner(cfg *config.Config) (sandbox.Provisioner, error) {
	switch cfg.Sandbox.Provider {
	case "kubernetes":
		restCfg, err := clientconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, fmt.Errorf("building scheme: %w", err)
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating cluster client: %w", err)
		}
		return kubernetes.New(c,
			cfg.Sandbox.Kubernetes.Template,
			cfg.Sandbox.Kubernetes.Namespace,
			cfg.Sandbox.Kubernetes.ClaimTimeout,
		), nil
	default:
		return e2b.New(e2b.Config{
			APIKey:   cfg.Sandbox.E2B.APIKey,
			APIURL:   cfg.Sandbox.E2B.APIURL,
			Template: cfg.Sandbox.E2B.Template,
		}), nil
	}
}

// buildAuthChain creates the authentication chain from configuration.
func buildAuthChain(cfg *config.Config) (*auth.AuthChain, error) {
	switch cfg.Auth.Type {
	case "apikey":
		var entries []apikey.RawKeyEntry
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
				},
			})
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		return &auth.AuthChain{
			Authenticators: []auth.Authenticator{authjwt.New(authjwt.Config{
				Issuer:      cfg.Auth.JWT.Issuer,
				Audience:    cfg.Auth.JWT.Audience,
				JWKSURL:     cfg.Auth.JWT.JWKSURL,
				UserClaim:   cfg.Auth.JWT.UserClaim,
				ScopesClaim: cfg.Auth.JWT.ScopesClaim,
			})},
			DefaultDecision: auth.No,
		}, nil
	default:
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{noop.New()},
			DefaultDecision: auth.Yes,
		}, nil
	}
}
