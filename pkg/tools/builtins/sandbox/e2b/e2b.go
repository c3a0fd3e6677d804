// Package e2b provides a sandbox.Provisioner backed by the E2B cloud
// sandbox control plane. Sandboxes are created through the REST API and
// commands are executed through the per-sandbox command endpoint.
//
// The API credential is read from the E2B_API_KEY environment variable.
// Its absence is a defined failure on Create, not a startup error: the
// gateway runs without the credential and provisioning reports it.
package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rhuss/werkzeug/pkg/debug"
	"github.com/rhuss/werkzeug/pkg/tools/builtins/sandbox"
)

// CredentialEnvVar names the environment variable carrying the API key.
const CredentialEnvVar = "E2B_API_KEY"

// Config holds the E2B client configuration.
type Config struct {
	// APIKey authenticates against the control plane. If empty, the
	// E2B_API_KEY environment variable is consulted on each Create.
	APIKey string

	// APIURL is the control plane base URL (default: "https://api.e2b.dev").
	APIURL string

	// Template is the sandbox template to instantiate (default: "base").
	Template string

	// BaseURLTemplate derives the public URL of port 8000 from a sandbox
	// identifier (default: "https://8000-%s.e2b.app").
	BaseURLTemplate string

	// CommandURLTemplate derives the command endpoint from a sandbox
	// identifier (default: "https://49983-%s.e2b.app").
	CommandURLTemplate string

	// HTTPClient allows injecting a custom HTTP client (useful for
	// testing). If nil, a client with a 10 minute timeout is used; the
	// effective command timeout is enforced remotely.
	HTTPClient *http.Client
}

// applyDefaults fills in zero-value fields.
func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.e2b.dev"
	}
	if c.Template == "" {
		c.Template = "base"
	}
	if c.BaseURLTemplate == "" {
		c.BaseURLTemplate = "https://8000-%s.e2b.app"
	}
	if c.CommandURLTemplate == "" {
		c.CommandURLTemplate = "https://49983-%s.e2b.app"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
}

// Client talks to the E2B control plane. It implements sandbox.Provisioner.
type Client struct {
	config Config
}

// Ensure Client implements Provisioner at compile time.
var _ sandbox.Provisioner = (*Client)(nil)

// New creates an E2B client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg}
}

// Name returns "e2b".
func (c *Client) Name() string {
	return "e2b"
}

// apiKey resolves the credential from config or environment.
func (c *Client) apiKey() string {
	if c.config.APIKey != "" {
		return c.config.APIKey
	}
	return os.Getenv(CredentialEnvVar)
}

// createRequest is the control plane sandbox creation payload.
type createRequest struct {
	TemplateID     string `json:"templateID"`
	TimeoutSeconds int    `json:"timeout"`
}

// createResponse is the control plane sandbox creation result.
type createResponse struct {
	SandboxID string `json:"sandboxID"`
}

// Create provisions a new sandbox with the given idle timeout. Returns
// sandbox.ErrMissingCredential before any remote call when no API key is
// configured.
func (c *Client) Create(ctx context.Context, idleTimeout time.Duration) (sandbox.Handle, error) {
	key := c.apiKey()
	if key == "" {
		return nil, fmt.Errorf("%s: %w", CredentialEnvVar, sandbox.ErrMissingCredential)
	}

	body, err := json.Marshal(createRequest{
		TemplateID:     c.config.Template,
		TimeoutSeconds: int(idleTimeout.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/sandboxes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", key)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox creation failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("control plane returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(respBody), 512))
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if created.SandboxID == "" {
		return nil, fmt.Errorf("control plane returned no sandbox identifier")
	}

	debug.Log("sandbox", "e2b sandbox created", "id", created.SandboxID)

	return &handle{client: c, id: created.SandboxID}, nil
}

// handle is a live E2B sandbox session.
type handle struct {
	client *Client
	id     string
}

// ID returns the identifier assigned by the control plane.
func (h *handle) ID() string {
	return h.id
}

// BaseURL derives the public URL of port 8000 from the identifier.
func (h *handle) BaseURL() string {
	return fmt.Sprintf(h.client.config.BaseURLTemplate, h.id)
}

// commandRequest is the command endpoint payload.
type commandRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// commandResponse is the command endpoint result.
type commandResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Run executes a shell command in the sandbox and blocks until it
// completes. A zero timeout applies the remote default.
func (h *handle) Run(ctx context.Context, command string, timeout time.Duration) (*sandbox.CommandResult, error) {
	payload := commandRequest{Command: command}
	if timeout > 0 {
		payload.TimeoutSeconds = int(timeout.Seconds())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf(h.client.config.CommandURLTemplate, h.id) + "/commands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", h.client.apiKey())

	resp, err := h.client.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(respBody), 512))
	}

	var result commandResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	debug.Trace("sandbox", "e2b command completed",
		"id", h.id,
		"exit_code", result.ExitCode,
		"stdout", debug.Truncate(result.Stdout, 2048),
	)

	return &sandbox.CommandResult{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}, nil
}

// Kill releases the sandbox on the control plane.
func (h *handle) Kill(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.client.config.APIURL+"/sandboxes/"+h.id, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", h.client.apiKey())

	resp, err := h.client.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox deletion failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("control plane returned HTTP %d", resp.StatusCode)
	}
	return nil
}
