package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/werkzeug/pkg/storage/memory"
	"github.com/rhuss/werkzeug/pkg/tools"
)

// fakeHandle is a scriptable sandbox session for tests.
type fakeHandle struct {
	mu       sync.Mutex
	id       string
	baseURL  string
	runFn    func(command string) (*CommandResult, error)
	commands []string
	kills    int
}

func (h *fakeHandle) ID() string      { return h.id }
func (h *fakeHandle) BaseURL() string { return h.baseURL }

func (h *fakeHandle) Run(_ context.Context, command string, _ time.Duration) (*CommandResult, error) {
	h.mu.Lock()
	h.commands = append(h.commands, command)
	h.mu.Unlock()
	if h.runFn != nil {
		return h.runFn(command)
	}
	return &CommandResult{ExitCode: 0}, nil
}

func (h *fakeHandle) Kill(_ context.Context) error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) killCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kills
}

func (h *fakeHandle) commandCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.commands)
}

// fakeProvisioner hands out pre-built handles in sequence.
type fakeProvisioner struct {
	handles []*fakeHandle
	err     error
	calls   int
}

func (p *fakeProvisioner) Name() string { return "fake" }

func (p *fakeProvisioner) Create(_ context.Context, _ time.Duration) (Handle, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.calls >= len(p.handles) {
		return nil, fmt.Errorf("no more handles")
	}
	h := p.handles[p.calls]
	p.calls++
	return h, nil
}

func newHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, baseURL: "https://8000-" + id + ".e2b.app"}
}

func execute(t *testing.T, p *Provider, tool, args string) *tools.ToolResult {
	t.Helper()
	result, err := p.Execute(context.Background(), tools.ToolCall{
		ID:        "call_1",
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("Execute(%s) returned error: %v", tool, err)
	}
	return result
}

func TestProvision_Success(t *testing.T) {
	prov := &fakeProvisioner{handles: []*fakeHandle{newHandle("sbx-1")}}
	p := New(prov, nil, Config{})

	result := execute(t, p, "provision_sandbox", `{"name":"web"}`)

	if result.IsError {
		t.Fatalf("expected success, got error: %s", result.Output)
	}
	for _, want := range []string{"✅ Sandbox provisioned!", "📦 Name: web", "🆔 ID: sbx-1", "🔗 URL: https://8000-sbx-1.e2b.app"} {
		if !strings.Contains(result.Output, want) {
			t.Errorf("output missing %q:\n%s", want, result.Output)
		}
	}
}

func TestProvision_MissingCredential(t *testing.T) {
	prov := &fakeProvisioner{err: fmt.Errorf("E2B_API_KEY: %w", ErrMissingCredential)}
	p := New(prov, nil, Config{})

	result := execute(t, p, "provision_sandbox", `{"name":"web"}`)

	if !result.IsError {
		t.Error("expected IsError for missing credential")
	}
	if result.Output != "❌ E2B_API_KEY not set. Please configure your API key." {
		t.Errorf("unexpected output: %s", result.Output)
	}
}

func TestProvision_DuplicateNameKillsDisplacedHandle(t *testing.T) {
	first := newHandle("sbx-1")
	second := newHandle("sbx-2")
	prov := &fakeProvisioner{handles: []*fakeHandle{first, second}}
	p := New(prov, nil, Config{})

	execute(t, p, "provision_sandbox", `{"name":"web"}`)
	result := execute(t, p, "provision_sandbox", `{"name":"web"}`)

	if result.IsError {
		t.Fatalf("expected success on reuse, got: %s", result.Output)
	}
	if first.killCount() != 1 {
		t.Errorf("displaced handle should be killed once, got %d", first.killCount())
	}
	if second.killCount() != 0 {
		t.Errorf("current handle must not be killed, got %d", second.killCount())
	}

	rec, _ := p.store.Get("web")
	if rec.ID != "sbx-2" {
		t.Errorf("expected registry to hold sbx-2, got %s", rec.ID)
	}
}

func TestList_Empty(t *testing.T) {
	p := New(&fakeProvisioner{}, nil, Config{})

	result := execute(t, p, "list_sandboxes", `{}`)

	if result.IsError {
		t.Error("list must not be an error")
	}
	if result.Output != "📭 No active sandboxes. Use provision_sandbox() to create one." {
		t.Errorf("unexpected output: %s", result.Output)
	}
}

func TestList_InsertionOrder(t *testing.T) {
	prov := &fakeProvisioner{handles: []*fakeHandle{newHandle("sbx-1"), newHandle("sbx-2")}}
	p := New(prov, nil, Config{})

	execute(t, p, "provision_sandbox", `{"name":"zulu"}`)
	execute(t, p, "provision_sandbox", `{"name":"alpha"}`)

	result := execute(t, p, "list_sandboxes", `{}`)

	if !strings.HasPrefix(result.Output, "📦 **Active Sandboxes:**\n\n") {
		t.Errorf("missing header:\n%s", result.Output)
	}
	if strings.Index(result.Output, "zulu") > strings.Index(result.Output, "alpha") {
		t.Errorf("expected insertion order (zulu before alpha):\n%s", result.Output)
	}
}

func TestRunCommand_SandboxNotFound(t *testing.T) {
	h := newHandle("sbx-1")
	prov := &fakeProvisioner{handles: []*fakeHandle{h}}
	p := New(prov, nil, Config{})

	result := execute(t, p, "run_command", `{"sandbox_name":"nope","command":"ls"}`)

	if !result.IsError {
		t.Error("expected IsError for unknown sandbox")
	}
	if result.Output != "❌ Sandbox 'nope' not found." {
		t.Errorf("unexpected output: %s", result.Output)
	}
	if h.commandCount() != 0 {
		t.Errorf("no command may reach a sandbox on lookup failure, got %d", h.commandCount())
	}
}

func TestRunCommand_Success(t *testing.T) {
	h := newHandle("sbx-1")
	h.runFn = func(string) (*CommandResult, error) {
		return &CommandResult{Stdout: "hello\n", ExitCode: 0}, nil
	}
	prov := &fakeProvisioner{handles: []*fakeHandle{h}}
	p := New(prov, nil, Config{})
	execute(t, p, "provision_sandbox", `{"name":"web"}`)

	result := execute(t, p, "run_command", `{"sandbox_name":"web","command":"echo hello"}`)

	if result.IsError {
		t.Fatalf("expected success, got: %s", result.Output)
	}
	if !strings.HasPrefix(result.Output, "✅ ") {
		t.Errorf("expected success marker:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "📤 stdout:\nhello\n") {
		t.Errorf("missing stdout block:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "🔢 Exit code: 0") {
		t.Errorf("missing exit code:\n%s", result.Output)
	}
	if strings.Contains(result.Output, "stderr") {
		t.Errorf("empty stderr must be omitted:\n%s", result.Output)
	}
}

func TestRunCommand_NonZeroExitIsWarningNotError(t *testing.T) {
	h := newHandle("sbx-1")
	h.runFn = func(string) (*CommandResult, error) {
		return &CommandResult{Stderr: "no such file\n", ExitCode: 2}, nil
	}
	prov := &fakeProvisioner{handles: []*fakeHandle{h}}
	p := New(prov, nil, Config{})
	execute(t, p, "provision_sandbox", `{"name":"web"}`)

	result := execute(t, p, "run_command", `{"sandbox_name":"web","command":"ls /nope"}`)

	if result.IsError {
		t.Error("non-zero exit code is a command outcome, not a tool error")
	}
	if !strings.HasPrefix(result.Output, "⚠️ ") {
		t.Errorf("expected warning marker:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "📤 stderr:\nno such file\n") {
		t.Errorf("missing stderr block:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "🔢 Exit code: 2") {
		t.Errorf("missing exit code:\n%s", result.Output)
	}
}

func TestRunCommand_TransportFailure(t *testing.T) {
	h := newHandle("sbx-1")
	h.runFn = func(string) (*CommandResult, error) {
		return nil, fmt.Errorf("connection refused")
	}
	prov := &fakeProvisioner{handles: []*fakeHandle{h}}
	p := New(prov, nil, Config{})
	execute(t, p, "provision_sandbox", `{"name":"web"}`)

	result := execute(t, p, "run_command", `{"sandbox_name":"web","command":"ls"}`)

	if !result.IsError {
		t.Error("expected IsError for transport failure")
	}
	if result.Output != "❌ Command failed: connection refused" {
		t.Errorf("unexpected output: %s", result.Output)
	}
}

func TestExecute_InvalidArguments(t *testing.T) {
	p := New(&fakeProvisioner{}, nil, Config{})

	result := execute(t, p, "run_command", `{not json`)

	if !result.IsError {
		t.Error("expected IsError for malformed arguments")
	}
	if !strings.HasPrefix(result.Output, "invalid arguments:") {
		t.Errorf("unexpected output: %s", result.Output)
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	p := New(&fakeProvisioner{}, nil, Config{})

	result := execute(t, p, "frobnicate", `{}`)

	if !result.IsError {
		t.Error("expected IsError for unknown tool")
	}
}

func TestCanExecute(t *testing.T) {
	p := New(&fakeProvisioner{}, nil, Config{})

	for _, name := range []string{"provision_sandbox", "list_sandboxes", "run_command", "deploy_app"} {
		if !p.CanExecute(name) {
			t.Errorf("expected CanExecute(%s)", name)
		}
	}
	if p.CanExecute("verify_url") {
		t.Error("must not claim other providers' tools")
	}
}

func TestClose_ReleasesAllSandboxes(t *testing.T) {
	h1 := newHandle("sbx-1")
	h2 := newHandle("sbx-2")
	prov := &fakeProvisioner{handles: []*fakeHandle{h1, h2}}
	p := New(prov, nil, Config{})

	execute(t, p, "provision_sandbox", `{"name":"a"}`)
	execute(t, p, "provision_sandbox", `{"name":"b"}`)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if h1.killCount() != 1 || h2.killCount() != 1 {
		t.Errorf("expected both handles killed once, got %d and %d", h1.killCount(), h2.killCount())
	}
	if p.store.Len() != 0 {
		t.Errorf("expected empty registry after Close, got %d", p.store.Len())
	}
}

func TestHandleListSandboxes(t *testing.T) {
	prov := &fakeProvisioner{handles: []*fakeHandle{newHandle("sbx-1")}}
	p := New(prov, nil, Config{})
	execute(t, p, "provision_sandbox", `{"name":"web"}`)

	rr := httptest.NewRecorder()
	p.handleListSandboxes(rr, httptest.NewRequest("GET", "/v1/sandboxes", nil))

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		Sandboxes []struct {
			Name    string `json:"name"`
			ID      string `json:"id"`
			BaseURL string `json:"base_url"`
		} `json:"sandboxes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(body.Sandboxes) != 1 {
		t.Fatalf("expected 1 sandbox, got %d", len(body.Sandboxes))
	}
	if body.Sandboxes[0].Name != "web" || body.Sandboxes[0].ID != "sbx-1" {
		t.Errorf("unexpected entry: %+v", body.Sandboxes[0])
	}
}

func TestProvision_RecordsAuditEvent(t *testing.T) {
	events := memory.New(10)
	prov := &fakeProvisioner{handles: []*fakeHandle{newHandle("sbx-1")}}
	p := New(prov, events, Config{})

	execute(t, p, "provision_sandbox", `{"name":"web"}`)

	stored, err := events.ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(stored))
	}
	if stored[0].Sandbox != "web" || !stored[0].Success {
		t.Errorf("unexpected event: %+v", stored[0])
	}
}

func TestRoutes_EventsRouteOnlyWithStore(t *testing.T) {
	noEvents := New(&fakeProvisioner{}, nil, Config{})
	if len(noEvents.Routes()) != 1 {
		t.Errorf("expected 1 route without event store, got %d", len(noEvents.Routes()))
	}

	withEvents := New(&fakeProvisioner{}, memory.New(10), Config{})
	if len(withEvents.Routes()) != 2 {
		t.Errorf("expected 2 routes with event store, got %d", len(withEvents.Routes()))
	}
}
