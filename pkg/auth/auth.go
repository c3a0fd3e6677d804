// Package auth authenticates requests to the gateway's HTTP surface.
// Authenticators vote with three outcomes so that several credential
// schemes can coexist on one endpoint: a scheme that does not recognize
// the request's credentials abstains and the next one is consulted.
// The MCP endpoint and the management routes sit behind the same chain;
// health and metrics endpoints bypass it.
package auth

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthDecision is one authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the credentials. The chain stops and the attached
	// identity is used for the rest of the request.
	Yes AuthDecision = iota

	// No rejects the request: credentials of this scheme were present
	// but invalid. The chain stops.
	No

	// Abstain means the request carries no credentials this
	// authenticator understands. The chain moves on.
	Abstain
)

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set only on Yes
	Err      error     // set only on No
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique caller identifier. Must be non-empty.
	Subject string

	// ServiceTier selects the caller's rate limit budget.
	ServiceTier string

	// Scopes lists the granted authorization scopes.
	Scopes []string

	// Metadata carries scheme-specific extras.
	Metadata map[string]string
}

// Authenticator examines a request's credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// AuthChain runs authenticators in order until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains:
	// Yes admits the request anonymously, No rejects it.
	DefaultDecision AuthDecision
}

// Authenticate evaluates the chain for one request.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, a := range c.Authenticators {
		if result := a.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
