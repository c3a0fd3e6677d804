package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/werkzeug/pkg/api"
	"github.com/rhuss/werkzeug/pkg/debug"
	"github.com/rhuss/werkzeug/pkg/storage"
	"github.com/rhuss/werkzeug/pkg/tools"
	"github.com/rhuss/werkzeug/pkg/tools/registry"
)

// Tool names exposed by this provider.
const (
	toolProvision = "provision_sandbox"
	toolList      = "list_sandboxes"
	toolRun       = "run_command"
	toolDeploy    = "deploy_app"
)

// Tool parameter schemas.
var (
	provisionParamsJSON = json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"A friendly name for the sandbox (e.g., \"deploy-1\")"}},"required":["name"]}`)
	listParamsJSON      = json.RawMessage(`{"type":"object","properties":{}}`)
	runParamsJSON       = json.RawMessage(`{"type":"object","properties":{"sandbox_name":{"type":"string","description":"Name of the sandbox"},"command":{"type":"string","description":"Shell command to execute"}},"required":["sandbox_name","command"]}`)
	deployParamsJSON    = json.RawMessage(`{"type":"object","properties":{"sandbox_name":{"type":"string","description":"Name of the sandbox to deploy to"},"repo_url":{"type":"string","description":"Git repository URL"}},"required":["sandbox_name","repo_url"]}`)
)

// Config holds the sandbox tool set configuration.
type Config struct {
	// IdleTimeout is the idle timeout requested for new sandboxes.
	IdleTimeout time.Duration

	// StepTimeout bounds the install and build steps of the deployment
	// pipeline.
	StepTimeout time.Duration

	// ServeGrace is how long to wait after launching the static server
	// before probing the process table.
	ServeGrace time.Duration
}

// defaults applies default values for unset configuration fields.
func (c *Config) defaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 600 * time.Second
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = 120 * time.Second
	}
	if c.ServeGrace == 0 {
		c.ServeGrace = 3 * time.Second
	}
}

// Provider is the FunctionProvider for the sandbox lifecycle tool set.
// It owns the process-wide sandbox registry.
type Provider struct {
	provisioner Provisioner
	store       *Store
	events      storage.EventStore
	config      Config

	// sleep is replaceable in tests to skip the serve grace period.
	sleep func(time.Duration)

	provisions  *prometheus.CounterVec
	commands    *prometheus.CounterVec
	deployments *prometheus.CounterVec
}

// Ensure Provider implements FunctionProvider.
var _ registry.FunctionProvider = (*Provider)(nil)

// New creates the sandbox tool provider. The event store is optional;
// pass nil to disable audit recording.
func New(provisioner Provisioner, events storage.EventStore, cfg Config) *Provider {
	cfg.defaults()

	return &Provider{
		provisioner: provisioner,
		store:       NewStore(),
		events:      events,
		config:      cfg,
		sleep:       time.Sleep,
		provisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "werkzeug_sandbox_provisions_total",
				Help: "Total sandbox provisioning attempts",
			},
			[]string{"provider", "status"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "werkzeug_sandbox_commands_total",
				Help: "Total sandbox command executions",
			},
			[]string{"status"},
		),
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "werkzeug_deployments_total",
				Help: "Total deployment pipeline runs",
			},
			[]string{"status"},
		),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "sandbox"
}

// Tools returns the tool definitions for this provider.
func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolProvision,
			Description: "Provision a new cloud sandbox for deployment",
			Parameters:  provisionParamsJSON,
		},
		{
			Type:        "function",
			Name:        toolList,
			Description: "List all active sandboxes",
			Parameters:  listParamsJSON,
		},
		{
			Type:        "function",
			Name:        toolRun,
			Description: "Execute a shell command in a sandbox",
			Parameters:  runParamsJSON,
		},
		{
			Type:        "function",
			Name:        toolDeploy,
			Description: "Deploy an app from a git repository to a sandbox (clone, install, build, serve)",
			Parameters:  deployParamsJSON,
		},
	}
}

// CanExecute reports whether this provider handles the named tool.
func (p *Provider) CanExecute(name string) bool {
	switch name {
	case toolProvision, toolList, toolRun, toolDeploy:
		return true
	}
	return false
}

// Execute runs one of the sandbox tools. Failures are reported through
// the tagged result; no error ever escapes to the framework.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Name        string `json:"name"`
		SandboxName string `json:"sandbox_name"`
		Command     string `json:"command"`
		RepoURL     string `json:"repo_url"`
	}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return &tools.ToolResult{
				CallID:  call.ID,
				Output:  fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	var output string
	var isError bool

	switch call.Name {
	case toolProvision:
		output, isError = p.provision(ctx, args.Name)
	case toolList:
		output = p.list()
	case toolRun:
		output, isError = p.runCommand(ctx, args.SandboxName, args.Command)
	case toolDeploy:
		output, isError = p.deploy(ctx, args.SandboxName, args.RepoURL)
	default:
		output = fmt.Sprintf("sandbox provider does not handle tool %q", call.Name)
		isError = true
	}

	return &tools.ToolResult{
		CallID:  call.ID,
		Output:  output,
		IsError: isError,
	}, nil
}

// provision creates a new sandbox and registers it under name.
// Duplicate names are last-write-wins; the displaced handle is killed so
// the remote sandbox it references is not leaked.
func (p *Provider) provision(ctx context.Context, name string) (string, bool) {
	slog.Info("provisioning sandbox", "name", name, "provider", p.provisioner.Name())

	handle, err := p.provisioner.Create(ctx, p.config.IdleTimeout)
	if err != nil {
		if errors.Is(err, ErrMissingCredential) {
			p.provisions.WithLabelValues(p.provisioner.Name(), "no_credential").Inc()
			return "❌ E2B_API_KEY not set. Please configure your API key.", true
		}
		p.provisions.WithLabelValues(p.provisioner.Name(), "error").Inc()
		p.record(ctx, storage.EventProvision, name, err.Error(), false)
		return fmt.Sprintf("❌ Failed to provision sandbox: %v", err), true
	}

	rec := &Record{
		Name:      name,
		Handle:    handle,
		ID:        handle.ID(),
		BaseURL:   handle.BaseURL(),
		CreatedAt: time.Now(),
	}

	if displaced := p.store.Put(rec); displaced != nil {
		slog.Warn("sandbox name reused, releasing previous sandbox",
			"name", name,
			"previous_id", displaced.ID,
		)
		p.kill(displaced)
	}

	p.provisions.WithLabelValues(p.provisioner.Name(), "success").Inc()
	p.record(ctx, storage.EventProvision, name, rec.ID, true)

	return fmt.Sprintf("✅ Sandbox provisioned!\n📦 Name: %s\n🆔 ID: %s\n🔗 URL: %s", name, rec.ID, rec.BaseURL), false
}

// list enumerates all known sandboxes in insertion order.
func (p *Provider) list() string {
	records := p.store.List()
	if len(records) == 0 {
		return "📭 No active sandboxes. Use provision_sandbox() to create one."
	}

	var b strings.Builder
	b.WriteString("📦 **Active Sandboxes:**\n\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "• **%s**\n", rec.Name)
		fmt.Fprintf(&b, "  ID: %s\n", rec.ID)
		fmt.Fprintf(&b, "  URL: %s\n\n", rec.BaseURL)
	}
	return b.String()
}

// runCommand executes one shell command in the named sandbox. The remote
// default timeout applies; there is no retry.
func (p *Provider) runCommand(ctx context.Context, name, command string) (string, bool) {
	rec, ok := p.store.Get(name)
	if !ok {
		return fmt.Sprintf("❌ Sandbox '%s' not found.", name), true
	}

	debug.Log("sandbox", "running command", "name", name, "command", command)

	result, err := rec.Handle.Run(ctx, command, 0)
	if err != nil {
		p.commands.WithLabelValues("error").Inc()
		p.record(ctx, storage.EventCommand, name, command, false)
		return fmt.Sprintf("❌ Command failed: %v", err), true
	}

	p.commands.WithLabelValues(commandStatus(result.ExitCode)).Inc()
	p.record(ctx, storage.EventCommand, name, command, result.ExitCode == 0)

	var b strings.Builder
	if result.Stdout != "" {
		fmt.Fprintf(&b, "📤 stdout:\n%s\n", result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprintf(&b, "📤 stderr:\n%s\n", result.Stderr)
	}
	fmt.Fprintf(&b, "🔢 Exit code: %d", result.ExitCode)

	marker := "✅"
	if result.ExitCode != 0 {
		marker = "⚠️"
	}
	// A non-zero exit code is a command outcome, not a tool failure.
	return marker + " " + b.String(), false
}

func commandStatus(exitCode int) string {
	if exitCode == 0 {
		return "success"
	}
	return "nonzero_exit"
}

// Routes returns the read-only management endpoints for this provider.
func (p *Provider) Routes() []registry.Route {
	routes := []registry.Route{
		{Method: http.MethodGet, Pattern: "/v1/sandboxes", Handler: p.handleListSandboxes},
	}
	if p.events != nil {
		routes = append(routes, registry.Route{
			Method: http.MethodGet, Pattern: "/v1/events", Handler: p.handleListEvents,
		})
	}
	return routes
}

// sandboxInfo is the management API representation of a Record.
// The handle itself is never serialized.
type sandboxInfo struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	BaseURL   string    `json:"base_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Provider) handleListSandboxes(w http.ResponseWriter, r *http.Request) {
	records := p.store.List()
	infos := make([]sandboxInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, sandboxInfo{
			Name:      rec.Name,
			ID:        rec.ID,
			BaseURL:   rec.BaseURL,
			CreatedAt: rec.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sandboxes": infos})
}

func (p *Provider) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := p.events.ListEvents(r.Context(), 100)
	if err != nil {
		http.Error(w, `{"error":"listing events failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"events": events})
}

// Collectors returns the custom Prometheus metrics for this provider.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.provisions, p.commands, p.deployments}
}

// Close releases every sandbox still registered.
func (p *Provider) Close() error {
	for _, rec := range p.store.Drain() {
		p.kill(rec)
	}
	return nil
}

// kill releases a record's remote sandbox. Best effort: failures are
// logged, the record is already gone from the registry.
func (p *Provider) kill(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rec.Handle.Kill(ctx); err != nil {
		slog.Warn("failed to release sandbox", "name", rec.Name, "id", rec.ID, "error", err.Error())
	}
}

// record writes an audit event. Best effort.
func (p *Provider) record(ctx context.Context, typ storage.EventType, name, detail string, success bool) {
	if p.events == nil {
		return
	}
	ev := &storage.Event{
		Type:      typ,
		Sandbox:   name,
		Detail:    detail,
		Success:   success,
		CreatedAt: time.Now(),
	}
	if err := p.events.SaveEvent(ctx, ev); err != nil {
		slog.Warn("failed to record audit event", "type", string(typ), "error", err.Error())
	}
}
