// Package messaging provides the outbound messaging tool set.
//
// The send_message tool is a placeholder contract: it returns a
// confirmation string and transmits nothing. Actual delivery happens
// through the hosting agent framework when the tool call returns. The
// framework's client handle and source identifier are supplied at
// construction time so a real delivery path can be added without
// changing the tool surface.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/werkzeug/pkg/api"
	"github.com/rhuss/werkzeug/pkg/tools"
	"github.com/rhuss/werkzeug/pkg/tools/registry"
)

const toolName = "send_message"

var toolParamsJSON = json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"The message text to send"}},"required":["text"]}`)

// AgentClient is the hosting framework's outbound messaging handle.
// Reserved for a future delivery path; Send never invokes it today.
type AgentClient interface {
	Publish(ctx context.Context, sourceID, text string) error
}

// Notifier holds the messaging context. Both fields may be nil/empty;
// Send does not consult them.
type Notifier struct {
	client   AgentClient
	sourceID string
}

// NewNotifier creates a Notifier with the framework's client handle and
// source identifier.
func NewNotifier(client AgentClient, sourceID string) *Notifier {
	return &Notifier{client: client, sourceID: sourceID}
}

// Send returns a confirmation embedding text. It performs no
// transmission: the framework delivers the returned string itself.
func (n *Notifier) Send(text string) string {
	return fmt.Sprintf("Message sent: %s", text)
}

// Provider is the FunctionProvider for the messaging tool set.
type Provider struct {
	notifier *Notifier
	sends    prometheus.Counter
}

// Ensure Provider implements FunctionProvider.
var _ registry.FunctionProvider = (*Provider)(nil)

// New creates the messaging tool provider.
func New(notifier *Notifier) *Provider {
	return &Provider{
		notifier: notifier,
		sends: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "werkzeug_messages_sent_total",
				Help: "Total send_message tool calls",
			},
		),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "messaging"
}

// Tools returns the tool definitions contributed by this provider.
func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Send a message back to the user",
			Parameters:  toolParamsJSON,
		},
	}
}

// CanExecute reports whether this provider handles the named tool.
func (p *Provider) CanExecute(name string) bool {
	return name == toolName
}

// Execute runs the send_message tool call.
func (p *Provider) Execute(_ context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("invalid arguments: %v", err),
			IsError: true,
		}, nil
	}

	p.sends.Inc()

	return &tools.ToolResult{
		CallID: call.ID,
		Output: p.notifier.Send(args.Text),
	}, nil
}

// Routes returns nil (no management API endpoints).
func (p *Provider) Routes() []registry.Route {
	return nil
}

// Collectors returns the custom Prometheus metrics for this provider.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.sends}
}

// Close is a no-op for this provider.
func (p *Provider) Close() error {
	return nil
}
