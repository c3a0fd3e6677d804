package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// voter is a scriptable authenticator.
type voter struct {
	result AuthResult
	calls  int
}

func (v *voter) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	v.calls++
	return v.result
}

func req() *http.Request {
	return httptest.NewRequest("POST", "/mcp", nil)
}

func TestChain_FirstYesWins(t *testing.T) {
	yes := &voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice"}}}
	never := &voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "bob"}}}

	chain := &AuthChain{Authenticators: []Authenticator{yes, never}}
	result := chain.Authenticate(context.Background(), req())

	if result.Decision != Yes || result.Identity.Subject != "alice" {
		t.Errorf("unexpected result: %+v", result)
	}
	if never.calls != 0 {
		t.Error("chain must stop on first Yes")
	}
}

func TestChain_NoStopsChain(t *testing.T) {
	no := &voter{result: AuthResult{Decision: No, Err: errors.New("bad key")}}
	never := &voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "bob"}}}

	chain := &AuthChain{Authenticators: []Authenticator{no, never}}
	result := chain.Authenticate(context.Background(), req())

	if result.Decision != No {
		t.Errorf("expected No, got %+v", result)
	}
	if never.calls != 0 {
		t.Error("chain must stop on first No")
	}
}

func TestChain_AbstainContinues(t *testing.T) {
	abstain := &voter{result: AuthResult{Decision: Abstain}}
	yes := &voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice"}}}

	chain := &AuthChain{Authenticators: []Authenticator{abstain, yes}}
	result := chain.Authenticate(context.Background(), req())

	if result.Decision != Yes {
		t.Errorf("expected Yes after abstain, got %+v", result)
	}
	if abstain.calls != 1 {
		t.Error("abstaining authenticator must be consulted")
	}
}

func TestChain_AllAbstainUsesDefault(t *testing.T) {
	abstain := &voter{result: AuthResult{Decision: Abstain}}

	open := &AuthChain{Authenticators: []Authenticator{abstain}, DefaultDecision: Yes}
	result := open.Authenticate(context.Background(), req())
	if result.Decision != Yes || result.Identity.Subject != "anonymous" {
		t.Errorf("expected anonymous Yes, got %+v", result)
	}

	closed := &AuthChain{Authenticators: []Authenticator{abstain}, DefaultDecision: No}
	result = closed.Authenticate(context.Background(), req())
	if result.Decision != No || !errors.Is(result.Err, ErrUnauthenticated) {
		t.Errorf("expected unauthenticated No, got %+v", result)
	}
}

func TestMiddleware_AllowsAuthenticated(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{
		&voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice", ServiceTier: "premium"}}},
	}}

	var seen *Identity
	handler := Middleware(chain, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req())

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen == nil || seen.Subject != "alice" {
		t.Errorf("identity not injected: %+v", seen)
	}
}

func TestMiddleware_RejectsUnauthenticated(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{
		&voter{result: AuthResult{Decision: No, Err: errors.New("bad key")}},
	}}

	handler := Middleware(chain, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req())

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestMiddleware_BypassEndpoints(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{
		&voter{result: AuthResult{Decision: No, Err: errors.New("bad key")}},
	}}

	reached := false
	handler := Middleware(chain, nil, DefaultBypassEndpoints)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

	if !reached {
		t.Error("bypass endpoint must skip authentication")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestMiddleware_EmptySubjectIsServerError(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{
		&voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: ""}}},
	}}

	handler := Middleware(chain, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req())

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestMiddleware_RateLimit(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{
		&voter{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice", ServiceTier: "default"}}},
	}}
	limiter := NewInProcessLimiter(map[string]TierConfig{"default": {RequestsPerMinute: 2}}, 0)

	handler := Middleware(chain, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req())
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req())
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after limit, got %d", rr.Code)
	}
}

func TestInProcessLimiter_NoLimitForZeroRPM(t *testing.T) {
	limiter := NewInProcessLimiter(nil, 0)
	id := &Identity{Subject: "alice"}

	for i := 0; i < 100; i++ {
		if err := limiter.Allow(context.Background(), id); err != nil {
			t.Fatalf("zero RPM means unlimited, got %v", err)
		}
	}
}
