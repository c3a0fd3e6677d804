// Package noop accepts every request as an anonymous caller. It is the
// default when no auth is configured, which keeps local development
// friction-free; production deployments configure apikey or jwt.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/werkzeug/pkg/auth"
)

// Authenticator votes Yes for every request.
type Authenticator struct{}

// New creates a no-op authenticator.
func New() *Authenticator {
	return &Authenticator{}
}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     "anonymous",
			ServiceTier: "default",
		},
	}
}
