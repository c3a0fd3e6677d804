// Package reachability provides the URL probing tool set: a single
// liveness check (verify_url) and an averaged multi-sample latency
// measurement (check_latency). The tool set is stateless; every probe is
// one HTTP GET with a fixed per-request timeout, redirects followed.
package reachability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/werkzeug/pkg/api"
	"github.com/rhuss/werkzeug/pkg/debug"
	"github.com/rhuss/werkzeug/pkg/tools"
	"github.com/rhuss/werkzeug/pkg/tools/registry"
)

const (
	toolVerify  = "verify_url"
	toolLatency = "check_latency"
)

var (
	verifyParamsJSON  = json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to verify"}},"required":["url"]}`)
	latencyParamsJSON = json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to check"},"samples":{"type":"integer","description":"Number of samples (default 3)"}},"required":["url"]}`)
)

// Doer issues HTTP requests. Satisfied by *http.Client; replaceable in
// tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the reachability tool set configuration.
type Config struct {
	// Timeout bounds each individual GET (default: 10s).
	Timeout time.Duration

	// DefaultSamples is the sample count used when the caller omits it
	// (default: 3).
	DefaultSamples int
}

// defaults applies default values for unset configuration fields.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.DefaultSamples == 0 {
		c.DefaultSamples = 3
	}
}

// Provider is the FunctionProvider for the reachability tool set.
type Provider struct {
	client Doer
	config Config

	// now is replaceable in tests for deterministic latency values.
	now func() time.Time

	probes    *prometheus.CounterVec
	latencies prometheus.Histogram
}

// Ensure Provider implements FunctionProvider.
var _ registry.FunctionProvider = (*Provider)(nil)

// New creates the reachability tool provider.
func New(cfg Config) *Provider {
	cfg.defaults()

	return &Provider{
		// Redirects are followed by the default client policy.
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		now:    time.Now,
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "werkzeug_reachability_probes_total",
				Help: "Total reachability probes",
			},
			[]string{"tool", "status"},
		),
		latencies: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "werkzeug_reachability_latency_seconds",
				Help:    "Observed probe latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "reachability"
}

// Tools returns the tool definitions contributed by this provider.
func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolVerify,
			Description: "Verify a URL is accessible and returns HTTP 200",
			Parameters:  verifyParamsJSON,
		},
		{
			Type:        "function",
			Name:        toolLatency,
			Description: "Measure latency to a URL with multiple samples",
			Parameters:  latencyParamsJSON,
		},
	}
}

// CanExecute reports whether this provider handles the named tool.
func (p *Provider) CanExecute(name string) bool {
	return name == toolVerify || name == toolLatency
}

// Execute runs a reachability tool call. Transport failures become tagged
// results; this method never raises them as errors.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		URL     string `json:"url"`
		Samples *int   `json:"samples"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("invalid arguments: %v", err),
			IsError: true,
		}, nil
	}
	if args.URL == "" {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  "url is required",
			IsError: true,
		}, nil
	}

	var output string
	var isError bool

	switch call.Name {
	case toolVerify:
		output, isError = p.verify(ctx, args.URL)
	case toolLatency:
		samples := p.config.DefaultSamples
		if args.Samples != nil {
			samples = *args.Samples
		}
		output, isError = p.checkLatency(ctx, args.URL, samples)
	default:
		output = fmt.Sprintf("reachability provider does not handle tool %q", call.Name)
		isError = true
	}

	return &tools.ToolResult{
		CallID:  call.ID,
		Output:  output,
		IsError: isError,
	}, nil
}

// verify issues one GET and reports status and wall-clock latency.
func (p *Provider) verify(ctx context.Context, url string) (string, bool) {
	debug.Log("reachability", "verifying", "url", url)

	elapsed, status, err := p.probe(ctx, url)
	if err != nil {
		p.probes.WithLabelValues(toolVerify, "error").Inc()
		return fmt.Sprintf("❌ Failed: %v", err), true
	}

	p.latencies.Observe(elapsed / 1000)

	if status == http.StatusOK {
		p.probes.WithLabelValues(toolVerify, "live").Inc()
		return fmt.Sprintf("✅ URL is LIVE!\n🔗 %s\n📊 HTTP %d\n⏱️ %.0fms", url, status, elapsed), false
	}

	p.probes.WithLabelValues(toolVerify, "unexpected_status").Inc()
	return fmt.Sprintf("⚠️ HTTP %d\n🔗 %s\n⏱️ %.0fms", status, url, elapsed), false
}

// checkLatency issues samples sequential GETs and reports average,
// minimum, and maximum latency. A non-positive sample count is an input
// validation error; a transport failure aborts the whole batch and
// discards partial results.
func (p *Provider) checkLatency(ctx context.Context, url string, samples int) (string, bool) {
	if samples <= 0 {
		return fmt.Sprintf("❌ samples must be positive, got %d", samples), true
	}

	times := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		elapsed, _, err := p.probe(ctx, url)
		if err != nil {
			p.probes.WithLabelValues(toolLatency, "error").Inc()
			return fmt.Sprintf("❌ Failed: %v", err), true
		}
		p.latencies.Observe(elapsed / 1000)
		times = append(times, elapsed)
	}

	avg, minT, maxT := times[0], times[0], times[0]
	sum := 0.0
	for _, t := range times {
		sum += t
		if t < minT {
			minT = t
		}
		if t > maxT {
			maxT = t
		}
	}
	avg = sum / float64(len(times))

	p.probes.WithLabelValues(toolLatency, "success").Inc()
	return fmt.Sprintf("📊 Latency: %.0fms avg (%.0f-%.0fms)", avg, minT, maxT), false
}

// probe issues one GET and returns the elapsed wall-clock time in
// milliseconds and the response status.
func (p *Provider) probe(ctx context.Context, url string) (elapsedMS float64, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}

	start := p.now()
	resp, err := p.client.Do(req)
	elapsed := p.now().Sub(start)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return float64(elapsed.Microseconds()) / 1000, resp.StatusCode, nil
}

// Routes returns nil (no management API endpoints).
func (p *Provider) Routes() []registry.Route {
	return nil
}

// Collectors returns the custom Prometheus metrics for this provider.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.probes, p.latencies}
}

// Close is a no-op for this provider.
func (p *Provider) Close() error {
	return nil
}
