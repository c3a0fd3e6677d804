// Package kubernetes provides a sandbox.Provisioner that manages sandbox
// pods through agent-sandbox SandboxClaim CRDs. Each provisioned sandbox
// is one claim; commands are executed through the executor service the
// sandbox template exposes on port 8080, and the deployed app is served
// through port 8000 on the same service.
package kubernetes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/werkzeug/pkg/tools/builtins/sandbox"
)

// Ensure Provisioner implements sandbox.Provisioner.
var _ sandbox.Provisioner = (*Provisioner)(nil)

// Provisioner creates sandboxes by creating SandboxClaim CRDs and waiting
// for the corresponding Sandbox to become ready.
type Provisioner struct {
	client     client.Client
	template   string
	namespace  string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Provisioner from configuration. timeout bounds how long
// Create waits for a claim to be bound and ready.
func New(c client.Client, template, namespace string, timeout time.Duration) *Provisioner {
	return &Provisioner{
		client:     c,
		template:   template,
		namespace:  namespace,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Name returns "kubernetes".
func (p *Provisioner) Name() string {
	return "kubernetes"
}

// Create creates a SandboxClaim and waits for the Sandbox to become
// ready. The idle timeout is not enforced by the claim API; the sandbox
// lives until its handle is killed. The claim name doubles as the
// sandbox identifier.
func (p *Provisioner) Create(ctx context.Context, _ time.Duration) (sandbox.Handle, error) {
	claimName := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      claimName,
			Namespace: p.namespace,
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: p.template,
			},
		},
	}

	if err := p.client.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("create SandboxClaim %q: %w", claimName, err)
	}

	slog.Debug("created SandboxClaim", "name", claimName, "namespace", p.namespace, "template", p.template)

	serviceFQDN, err := p.waitForReady(ctx, claimName)
	if err != nil {
		// Clean up the claim on error.
		p.deleteClaim(context.Background(), claimName)
		return nil, err
	}

	slog.Debug("sandbox ready", "name", claimName, "service_fqdn", serviceFQDN)

	return &handle{provisioner: p, name: claimName, serviceFQDN: serviceFQDN}, nil
}

// waitForReady polls the Sandbox resource until its Ready condition is True
// or the timeout expires.
func (p *Provisioner) waitForReady(ctx context.Context, sandboxName string) (string, error) {
	deadline := time.After(p.timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled waiting for Sandbox %q: %w", sandboxName, ctx.Err())
		case <-deadline:
			return "", fmt.Errorf("timeout waiting for Sandbox %q to become ready (waited %s)", sandboxName, p.timeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			key := types.NamespacedName{Name: sandboxName, Namespace: p.namespace}
			if err := p.client.Get(ctx, key, sb); err != nil {
				// Sandbox may not exist yet (controller hasn't created it). Keep polling.
				slog.Debug("waiting for Sandbox", "name", sandboxName, "error", err.Error())
				continue
			}

			if isReady(sb) {
				if sb.Status.ServiceFQDN == "" {
					continue // Ready but FQDN not yet populated.
				}
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

// isReady checks if the Sandbox has a Ready condition set to True.
func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim deletes a SandboxClaim. Errors are logged but not returned
// since this is called from cleanup paths.
func (p *Provisioner) deleteClaim(ctx context.Context, name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: p.namespace,
		},
	}
	if err := p.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", p.namespace, "error", err.Error())
		return
	}
	slog.Debug("deleted SandboxClaim", "name", name, "namespace", p.namespace)
}

// generateClaimNameFn creates a unique name for a SandboxClaim.
// Replaceable in tests for deterministic naming.
var generateClaimNameFn = func() string {
	return fmt.Sprintf("werkzeug-sbx-%d", time.Now().UnixNano())
}

// handle is a live claim-backed sandbox session.
type handle struct {
	provisioner *Provisioner
	name        string
	serviceFQDN string
}

// ID returns the claim name.
func (h *handle) ID() string {
	return h.name
}

// BaseURL returns the in-cluster URL of port 8000 on the sandbox service.
func (h *handle) BaseURL() string {
	return fmt.Sprintf("http://%s:8000", h.serviceFQDN)
}

// commandRequest is the executor service payload.
type commandRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// commandResponse is the executor service result.
type commandResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Run executes a shell command through the executor service on port 8080.
func (h *handle) Run(ctx context.Context, command string, timeout time.Duration) (*sandbox.CommandResult, error) {
	payload := commandRequest{Command: command}
	if timeout > 0 {
		payload.TimeoutSeconds = int(timeout.Seconds())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("http://%s:8080/commands", h.serviceFQDN)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.provisioner.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("executor returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result commandResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &sandbox.CommandResult{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}, nil
}

// Kill deletes the backing SandboxClaim.
func (h *handle) Kill(ctx context.Context) error {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      h.name,
			Namespace: h.provisioner.namespace,
		},
	}
	if err := h.provisioner.client.Delete(ctx, claim); err != nil {
		return fmt.Errorf("delete SandboxClaim %q: %w", h.name, err)
	}
	return nil
}
