// Package server assembles the werkzeug gateway surface: the MCP tool
// endpoint, provider management routes, health checks, and metrics.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/werkzeug/pkg/auth"
	"github.com/rhuss/werkzeug/pkg/debug"
	"github.com/rhuss/werkzeug/pkg/observability"
	"github.com/rhuss/werkzeug/pkg/tools"
	"github.com/rhuss/werkzeug/pkg/tools/registry"
)

// Version is the reported gateway version. Overridden at build time via
// -ldflags "-X github.com/rhuss/werkzeug/pkg/server.Version=...".
var Version = "dev"

// Options configures the gateway handler.
type Options struct {
	// Registry holds the builtin tool providers. Required.
	Registry *registry.FunctionRegistry

	// AuthChain authenticates requests. If nil, all requests are allowed.
	AuthChain *auth.AuthChain

	// RateLimiter enforces per-identity rate limits. Optional.
	RateLimiter auth.RateLimiter

	// MetricsEnabled mounts the Prometheus endpoint at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string

	Logger *slog.Logger
}

// NewHandler builds the complete gateway http.Handler.
//
// Routes:
//   - POST/GET /mcp: MCP streamable HTTP endpoint exposing all builtin tools
//   - provider management routes (e.g. GET /v1/sandboxes) under auth
//   - GET /healthz, GET /readyz: unauthenticated health checks
//   - GET /metrics: Prometheus metrics (when enabled)
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := buildMCPServer(opts.Registry)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/", opts.Registry.HTTPHandler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !opts.Registry.HasProviders() {
			http.Error(w, "no providers registered", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n"))
	})

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}

	var handler http.Handler = mux
	handler = observability.MetricsMiddleware(handler)

	if opts.AuthChain != nil {
		handler = auth.Middleware(opts.AuthChain, opts.RateLimiter, auth.DefaultBypassEndpoints)(handler)
	}

	return handler
}

// buildMCPServer creates an MCP server exposing every tool the registry
// discovered. Tool calls are routed through the registry so that metrics
// and panic recovery apply uniformly.
func buildMCPServer(reg *registry.FunctionRegistry) *mcp.Server {
	srv := mcp.NewServer(
		&mcp.Implementation{Name: "werkzeug", Version: Version},
		nil,
	)

	for _, td := range reg.DiscoveredTools() {
		name := td.Name

		var schema map[string]any
		if len(td.Parameters) > 0 {
			if err := json.Unmarshal(td.Parameters, &schema); err != nil {
				slog.Warn("skipping tool with unparsable schema", "tool", name, "error", err.Error())
				continue
			}
		}

		srv.AddTool(
			&mcp.Tool{
				Name:        name,
				Description: td.Description,
				InputSchema: schema,
			},
			func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return dispatch(ctx, reg, name, req)
			},
		)
	}

	return srv
}

// dispatch executes a single MCP tool call through the registry and
// converts the result to the MCP wire format.
func dispatch(ctx context.Context, reg *registry.FunctionRegistry, name string, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	call := tools.ToolCall{
		ID:        generateCallID(),
		Name:      name,
		Arguments: string(req.Params.Arguments),
	}

	debug.Log("server", "mcp tool call", "tool", name, "call_id", call.ID)

	result, err := reg.Execute(ctx, call)
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Output}},
		IsError: result.IsError,
	}, nil
}

// generateCallID creates a unique tool call identifier as a hex string.
func generateCallID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "call_" + hex.EncodeToString(b)
}
