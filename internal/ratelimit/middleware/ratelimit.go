package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"folio/internal/ratelimit/models"
	"folio/pkg/platform/httputil"
	"folio/pkg/platform/privacy"
)

const headerStatus = "X-RateLimit-Status"

type RateLimiter interface {
	Check(ctx context.Context, policy models.Policy, key models.ClientKey) (*models.RateLimitResult, error)
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (local development).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit enforces policy per client IP and path.
func (m *Middleware) RateLimit(policy models.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := models.KeyFromRequest(r)

			result, err := m.limiter.Check(ctx, policy, key)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"ip_prefix", privacy.AnonymizeIP(key.IP),
					"policy", policy.Name,
				)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "service_unavailable"})
				return
			}

			// Add headers regardless of outcome
			AddRateLimitHeaders(w, result)

			if !result.Allowed {
				WriteRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AddRateLimitHeaders writes the X-RateLimit-* headers for result.
func AddRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		w.Header().Set(headerStatus, "degraded")
	}
}

// WriteRateLimitExceeded writes the 429 response with Retry-After.
func WriteRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limited",
		Message:    "Too many requests",
		RetryAfter: result.RetryAfter,
		ResetAt:    result.ResetAt.UTC(),
	})
}
