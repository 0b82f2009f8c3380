package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/toolnest/toolnest/internal/metrics"
	"github.com/toolnest/toolnest/internal/ratelimit"
)

// Checker makes fixed-window decisions.
type Checker interface {
	Check(ctx context.Context, identity, endpoint string, rule ratelimit.Rule) (ratelimit.Decision, error)
}

// FixedWindow returns an HTTP middleware that applies the named rule per
// client IP. Rejected requests get 429 with Retry-After set to the time
// left in the window. If the counter store fails the request is let
// through and the failure is logged.
func FixedWindow(checker Checker, rules *ratelimit.Rules, name string, logger *slog.Logger) func(http.Handler) http.Handler {
	rule := rules.Get(name)
	return func(next http.Handler) http.Handler {
		if rule.Disabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := httprate.KeyByIP(r)
			if err != nil {
				identity = r.RemoteAddr
			}

			d, err := checker.Check(r.Context(), identity, name, rule)
			if err != nil {
				metrics.RateLimitErrorsTotal.Inc()
				logger.Error("rate limit check failed, allowing request",
					"rule", name,
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				metrics.RateLimitedTotal.WithLabelValues(name).Inc()
				logger.Info("rate limit exceeded",
					"rule", name,
					"identity", identity,
					"limit", rule.String(),
					"retry_after", d.RetryAfter,
				)
				h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds(d.RetryAfter)))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded: "+rule.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RetryAfterSeconds rounds d up to whole seconds, with a minimum of one.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// RateLimit returns an HTTP middleware that caps every client IP at
// requestsPerMinute across all routes, on top of the per-route rules.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}),
	)
}
