package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/werkzeug/pkg/observability"
)

// DefaultBypassEndpoints lists paths served without authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

const (
	unauthorizedBody = `{"error":{"type":"invalid_request","message":"authentication required"}}`
	rateLimitedBody  = `{"error":{"type":"too_many_requests","message":"rate limit exceeded"}}`
	authBrokenBody   = `{"error":{"type":"server_error","message":"internal authentication error"}}`
)

// Middleware guards a handler with the given chain. Requests to bypass
// paths pass through untouched; everything else is authenticated, rate
// limited when a limiter is set, and served with the identity in the
// request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision == No {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}
			if result.Decision != Yes || result.Identity == nil {
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}

			// An empty subject would collapse all callers into one rate
			// limit bucket, so treat it as an authenticator bug.
			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				http.Error(w, authBrokenBody, http.StatusInternalServerError)
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(result.Identity.ServiceTier).Inc()
					http.Error(w, rateLimitedBody, http.StatusTooManyRequests)
					return
				}
			}

			slog.Debug("authentication succeeded", "subject", result.Identity.Subject, "path", r.URL.Path)

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}
