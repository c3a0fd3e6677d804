// Package registry hosts built-in tool providers. Each FunctionProvider
// bundles a set of in-process tools with optional management HTTP
// routes and Prometheus collectors; the FunctionRegistry aggregates
// them behind the tools.ToolExecutor interface the gateway dispatches
// through.
package registry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/werkzeug/pkg/api"
	"github.com/rhuss/werkzeug/pkg/tools"
)

// FunctionProvider is one pluggable set of built-in tools.
type FunctionProvider interface {
	// Name identifies the provider, e.g. "sandbox" or "reachability".
	Name() string

	// Tools lists the tool definitions this provider contributes.
	Tools() []api.ToolDefinition

	// CanExecute reports whether this provider owns the named tool.
	CanExecute(name string) bool

	// Execute runs one tool call.
	Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)

	// Routes lists management HTTP endpoints (listings, status) the
	// provider wants mounted on the gateway.
	Routes() []Route

	// Collectors lists provider-specific Prometheus collectors.
	Collectors() []prometheus.Collector

	// Close releases resources held by the provider.
	Close() error
}

// Route is one management HTTP endpoint. An empty Method matches all
// methods, per net/http mux pattern rules.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
