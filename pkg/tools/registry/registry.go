package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/werkzeug/pkg/api"
	"github.com/rhuss/werkzeug/pkg/tools"
)

var (
	builtinToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkzeug_builtin_tool_executions_total",
			Help: "Total built-in tool executions",
		},
		[]string{"provider", "tool_name", "status"},
	)

	builtinToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkzeug_builtin_tool_duration_seconds",
			Help:    "Built-in tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "tool_name"},
	)

	builtinAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkzeug_builtin_api_requests_total",
			Help: "Total built-in provider API requests",
		},
		[]string{"provider", "method", "path", "status"},
	)

	builtinAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkzeug_builtin_api_duration_seconds",
			Help:    "Built-in provider API request duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		builtinToolExecutions,
		builtinToolDuration,
		builtinAPIRequests,
		builtinAPIDuration,
	)
}

// FunctionRegistry aggregates FunctionProviders behind a single
// tools.ToolExecutor. It owns the tool-name namespace, dispatches calls
// to the owning provider with metrics and panic containment, and merges
// the providers' management routes into one handler.
type FunctionRegistry struct {
	mu        sync.RWMutex
	providers []FunctionProvider
	byTool    map[string]FunctionProvider
}

var _ tools.ToolExecutor = (*FunctionRegistry)(nil)

// New creates an empty FunctionRegistry.
func New() *FunctionRegistry {
	return &FunctionRegistry{byTool: make(map[string]FunctionProvider)}
}

// Register adds a provider. When two providers advertise the same tool
// name, the earlier registration keeps it and the conflict is logged.
// Provider collectors are registered with the default Prometheus
// registry as a side effect.
func (r *FunctionRegistry) Register(p FunctionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)

	for _, td := range p.Tools() {
		if winner, taken := r.byTool[td.Name]; taken {
			slog.Warn("builtin tool name conflict, keeping first provider",
				"tool", td.Name,
				"winner", winner.Name(),
				"loser", p.Name(),
			)
			continue
		}
		r.byTool[td.Name] = p
	}

	for _, c := range p.Collectors() {
		if err := prometheus.Register(c); err != nil {
			slog.Debug("collector already registered", "provider", p.Name(), "error", err)
		}
	}

	slog.Info("registered builtin provider",
		"provider", p.Name(),
		"tools", len(p.Tools()),
		"routes", len(p.Routes()),
	)
}

// Kind returns ToolKindBuiltin.
func (r *FunctionRegistry) Kind() tools.ToolKind {
	return tools.ToolKindBuiltin
}

// CanExecute reports whether any registered provider owns the tool.
func (r *FunctionRegistry) CanExecute(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byTool[toolName]
	return ok
}

// Execute dispatches the call to the owning provider. A panicking
// provider is contained: the caller receives an error result, never a
// crashed gateway.
func (r *FunctionRegistry) Execute(ctx context.Context, call tools.ToolCall) (result *tools.ToolResult, err error) {
	r.mu.RLock()
	p, ok := r.byTool[call.Name]
	r.mu.RUnlock()

	if !ok {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no builtin provider handles tool %q", call.Name),
			IsError: true,
		}, nil
	}

	providerName := p.Name()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("builtin tool provider panicked",
				"provider", providerName,
				"tool", call.Name,
				"panic", rec,
			)
			result = &tools.ToolResult{
				CallID:  call.ID,
				Output:  fmt.Sprintf("internal error: builtin tool %q panicked", call.Name),
				IsError: true,
			}
			err = nil
			recordExecution(providerName, call.Name, "panic", start)
		}
	}()

	result, err = p.Execute(ctx, call)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result != nil && result.IsError:
		status = "tool_error"
	}
	recordExecution(providerName, call.Name, status, start)

	return result, err
}

func recordExecution(provider, tool, status string, start time.Time) {
	builtinToolExecutions.WithLabelValues(provider, tool, status).Inc()
	builtinToolDuration.WithLabelValues(provider, tool).Observe(time.Since(start).Seconds())
}

// DiscoveredTools returns the tool definitions of every provider in
// registration order.
func (r *FunctionRegistry) DiscoveredTools() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []api.ToolDefinition
	for _, p := range r.providers {
		defs = append(defs, p.Tools()...)
	}
	return defs
}

// HTTPHandler merges the providers' management routes into one mux,
// each route wrapped with the per-provider API metrics.
func (r *FunctionRegistry) HTTPHandler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mux := http.NewServeMux()
	for _, p := range r.providers {
		for _, route := range p.Routes() {
			pattern := route.Pattern
			if route.Method != "" {
				pattern = route.Method + " " + route.Pattern
			}
			mux.HandleFunc(pattern, wrapRoute(p.Name(), route))
		}
	}
	return mux
}

// Close closes every provider and returns the last error seen.
func (r *FunctionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close builtin provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// HasProviders reports whether anything has been registered, which is
// what readiness checks care about.
func (r *FunctionRegistry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
