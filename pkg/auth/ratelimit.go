package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an authenticated identity may issue
// another request right now.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds the per-minute budget for one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter enforces fixed one-minute windows per subject and
// tier, entirely in memory. Tool calls are expensive (each may spin up
// a sandbox), so the budgets here are expected to be small.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int

	mu      sync.Mutex
	windows map[string]*requestWindow
}

type requestWindow struct {
	startedAt time.Time
	used      int
}

// NewInProcessLimiter creates a limiter with per-tier budgets. Tiers
// absent from the map fall back to defaultRPM; a budget of zero or
// less means unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		windows:    make(map[string]*requestWindow),
	}
}

// Allow consumes one request from the identity's current window,
// returning ErrTooManyRequests when the window budget is spent.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	budget := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		budget = tc.RequestsPerMinute
	}
	if budget <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.Sub(w.startedAt) >= time.Minute {
		l.windows[key] = &requestWindow{startedAt: now, used: 1}
		return nil
	}

	w.used++
	if w.used > budget {
		return ErrTooManyRequests
	}
	return nil
}
