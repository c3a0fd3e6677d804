// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the werkzeug gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ToolBuckets defines histogram buckets suited for infrastructure tool
// latencies, ranging from 10ms to 300s (deployments can take minutes).
var ToolBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkzeug_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkzeug_request_duration_seconds",
			Help:    "Request duration",
			Buckets: ToolBuckets,
		},
		[]string{"method", "route"},
	)

	// SandboxesActive tracks the number of sandboxes currently registered.
	SandboxesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "werkzeug_sandboxes_active",
			Help: "Active sandboxes",
		},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkzeug_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkzeug_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SandboxesActive,
		ToolExecutionsTotal,
		RateLimitRejectedTotal,
	)
}
