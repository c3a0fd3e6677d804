// Package sandbox provides the sandbox lifecycle tool set: provisioning
// remote cloud sandboxes, running shell commands in them, and driving a
// fixed clone→install→build→serve deployment pipeline.
//
// The remote side is reached through the narrow Provisioner/Handle
// interfaces. Implementations exist for the E2B control plane (e2b
// subpackage) and for agent-sandbox SandboxClaim CRDs (kubernetes
// subpackage).
package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrMissingCredential is returned by a Provisioner whose API credential
// is not configured. Create must return it before any remote call is made.
var ErrMissingCredential = errors.New("sandbox credential not configured")

// CommandResult is the outcome of one shell command in a sandbox.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Handle is an exclusively owned live remote session. The Record holding
// a Handle is the only referent with authority to issue commands on it.
type Handle interface {
	// ID returns the identifier assigned by the remote provisioning call.
	ID() string

	// BaseURL returns the public URL under which port 8000 of this
	// sandbox is reachable.
	BaseURL() string

	// Run executes a shell command synchronously and returns its output
	// and exit code. A zero timeout applies the remote default. A non-nil
	// error means the command could not be executed at all; a non-zero
	// exit code is reported through the result, not the error.
	Run(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error)

	// Kill releases the remote sandbox.
	Kill(ctx context.Context) error
}

// Provisioner creates sandboxes on a remote provider.
type Provisioner interface {
	// Name identifies the backing provider ("e2b", "kubernetes").
	Name() string

	// Create provisions a new sandbox with the given idle timeout.
	Create(ctx context.Context, idleTimeout time.Duration) (Handle, error)
}
