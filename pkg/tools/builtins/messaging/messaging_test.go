package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/rhuss/werkzeug/pkg/tools"
)

// countingClient records Publish calls. The placeholder contract says it
// must never be invoked.
type countingClient struct {
	calls int
}

func (c *countingClient) Publish(_ context.Context, _, _ string) error {
	c.calls++
	return nil
}

func TestSend_ReturnsConfirmation(t *testing.T) {
	n := NewNotifier(nil, "agent-1")

	got := n.Send("hello world")

	if got != "Message sent: hello world" {
		t.Errorf("unexpected confirmation: %q", got)
	}
}

func TestExecute_SendMessage(t *testing.T) {
	client := &countingClient{}
	p := New(NewNotifier(client, "agent-1"))

	result, err := p.Execute(context.Background(), tools.ToolCall{
		ID:        "call_1",
		Name:      "send_message",
		Arguments: `{"text":"deployment finished"}`,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.IsError {
		t.Errorf("expected success, got error: %s", result.Output)
	}
	if result.Output != "Message sent: deployment finished" {
		t.Errorf("unexpected output: %q", result.Output)
	}
	if client.calls != 0 {
		t.Errorf("placeholder must not transmit, Publish called %d times", client.calls)
	}
}

func TestExecute_InvalidArguments(t *testing.T) {
	p := New(NewNotifier(nil, ""))

	result, err := p.Execute(context.Background(), tools.ToolCall{
		ID:        "call_1",
		Name:      "send_message",
		Arguments: `{broken`,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if !result.IsError {
		t.Error("expected IsError for malformed arguments")
	}
	if !strings.HasPrefix(result.Output, "invalid arguments:") {
		t.Errorf("unexpected output: %s", result.Output)
	}
}

func TestTools(t *testing.T) {
	p := New(NewNotifier(nil, ""))

	defs := p.Tools()
	if len(defs) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(defs))
	}
	if defs[0].Name != "send_message" {
		t.Errorf("unexpected tool name: %s", defs[0].Name)
	}
	if !p.CanExecute("send_message") {
		t.Error("expected CanExecute(send_message)")
	}
	if p.CanExecute("verify_url") {
		t.Error("must not claim other providers' tools")
	}
}
