// Package ports defines shared interfaces for the ratelimit module.
package ports

import (
	"context"
	"log/slog"
	"time"

	"folio/internal/ratelimit/models"
	"folio/pkg/requestcontext"
)

// BucketStore manages fixed-window rate limit counters. Allow must be atomic
// per key: two concurrent calls can never both observe the same count.
type BucketStore interface {
	// Allow counts one request against key and reports whether it fits the limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)

	// Reset clears the rate limit counter for a key.
	Reset(ctx context.Context, key string) error

	// GetCurrentCount returns the current request count in the window.
	GetCurrentCount(ctx context.Context, key string) (int, error)
}

// Sweeper is implemented by stores that must evict expired buckets themselves.
type Sweeper interface {
	Sweep(now time.Time) int
}

// LogAudit writes a security-relevant ratelimit event to the structured log.
func LogAudit(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, args...)
}
