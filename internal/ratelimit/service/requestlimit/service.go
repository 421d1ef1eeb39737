// Package requestlimit applies fixed-window policies to client keys. When the
// primary store is remote, a circuit breaker routes checks to a private
// in-memory store while the remote store is failing.
package requestlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"folio/internal/ratelimit/metrics"
	"folio/internal/ratelimit/models"
	"folio/internal/ratelimit/ports"
	"folio/internal/ratelimit/store/bucket"
	"folio/pkg/platform/circuit"
	"folio/pkg/platform/privacy"
	"folio/pkg/requestcontext"
)

// Type aliases for interfaces from ports package.
type (
	BucketStore = ports.BucketStore
)

type Service struct {
	buckets       BucketStore
	fallback      *bucket.InMemoryBucketStore
	breaker       *circuit.Breaker
	probeInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	probeMu   sync.Mutex
	lastProbe time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithFallback enables the in-memory fallback behind a breaker that opens
// after failureThreshold consecutive primary errors.
func WithFallback(failureThreshold int) Option {
	return func(s *Service) {
		s.fallback = bucket.New()
		s.breaker = circuit.New("ratelimit-store",
			circuit.WithFailureThreshold(failureThreshold),
			circuit.WithSuccessThreshold(3),
		)
	}
}

// WithProbeInterval sets how often an open breaker retries the primary store.
func WithProbeInterval(d time.Duration) Option {
	return func(s *Service) {
		s.probeInterval = d
	}
}

func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}

	svc := &Service{
		buckets:       buckets,
		probeInterval: 5 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check counts one request for key under policy.
func (s *Service) Check(ctx context.Context, policy models.Policy, key models.ClientKey) (*models.RateLimitResult, error) {
	bucketKey := models.BucketKey(policy.Name, key)

	result, err := s.allow(ctx, bucketKey, policy)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCheck(policy.Name, result.Allowed)
	}
	if !result.Allowed {
		ports.LogAudit(ctx, s.logger, "rate_limit_exceeded",
			"identifier", privacy.AnonymizeIP(key.IP),
			"path", key.Path,
			"policy", policy.Name,
			"limit", policy.Requests,
			"window_seconds", int(policy.Window.Seconds()),
		)
	}
	return result, nil
}

func (s *Service) allow(ctx context.Context, key string, policy models.Policy) (*models.RateLimitResult, error) {
	if s.breaker == nil {
		return s.buckets.Allow(ctx, key, policy.Requests, policy.Window)
	}

	if s.breaker.IsOpen() && !s.shouldProbe(requestcontext.Now(ctx)) {
		return s.allowFallback(ctx, key, policy)
	}

	result, err := s.buckets.Allow(ctx, key, policy.Requests, policy.Window)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors()
		}
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "breaker", s.breaker.Name(), "error", err)
			if s.metrics != nil {
				s.metrics.SetDegraded(true)
			}
		}
		return s.allowFallback(ctx, key, policy)
	}

	usePrimary, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetDegraded(false)
		}
	}
	if !usePrimary {
		return s.allowFallback(ctx, key, policy)
	}
	return result, nil
}

func (s *Service) allowFallback(ctx context.Context, key string, policy models.Policy) (*models.RateLimitResult, error) {
	result, err := s.fallback.Allow(ctx, key, policy.Requests, policy.Window)
	if err != nil {
		return nil, err
	}
	result.Degraded = true
	return result, nil
}

func (s *Service) shouldProbe(now time.Time) bool {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if now.Sub(s.lastProbe) < s.probeInterval {
		return false
	}
	s.lastProbe = now
	return true
}

// Sweep evicts expired in-memory buckets from the primary (when it is
// in-memory) and the fallback.
func (s *Service) Sweep(now time.Time) int {
	removed := 0
	if sw, ok := s.buckets.(ports.Sweeper); ok {
		removed += sw.Sweep(now)
	}
	if s.fallback != nil {
		removed += s.fallback.Sweep(now)
	}
	if s.metrics != nil {
		s.metrics.AddSwept(removed)
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.DebugContext(ctx, "swept expired rate limit buckets", "count", n)
			}
		}
	}
}
