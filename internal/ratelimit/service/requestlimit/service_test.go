package requestlimit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"folio/internal/ratelimit/metrics"
	"folio/internal/ratelimit/models"
	"folio/internal/ratelimit/store/bucket"
	"folio/pkg/requestcontext"
)

// flakyStore wraps the memory store and fails while down is true.
type flakyStore struct {
	*bucket.InMemoryBucketStore
	down  bool
	calls int
}

func (f *flakyStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	f.calls++
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.InMemoryBucketStore.Allow(ctx, key, limit, window)
}

type ServiceSuite struct {
	suite.Suite
	now     time.Time
	policy  models.Policy
	key     models.ClientKey
	logs    *bytes.Buffer
	metrics *metrics.Metrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.policy = models.Policy{Name: models.PolicyContact, Requests: 5, Window: 10 * time.Minute}
	s.key = models.ClientKey{IP: "203.0.113.5", Path: "/api/contact"}
	s.logs = &bytes.Buffer{}
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *ServiceSuite) ctxAt(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *ServiceSuite) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(s.logs, nil))
}

func (s *ServiceSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}

func (s *ServiceSuite) TestCheck() {
	svc, err := New(bucket.New(), WithLogger(s.logger()), WithMetrics(s.metrics))
	s.Require().NoError(err)

	for range 5 {
		res, err := svc.Check(s.ctxAt(0), s.policy, s.key)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.False(res.Degraded)
	}
	res, err := svc.Check(s.ctxAt(time.Second), s.policy, s.key)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(s.now.Add(10*time.Minute), res.ResetAt)

	s.Equal(5.0, testutil.ToFloat64(s.metrics.Checks.WithLabelValues(models.PolicyContact, "allowed")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Checks.WithLabelValues(models.PolicyContact, "rejected")))
	s.Contains(s.logs.String(), "rate_limit_exceeded")
	s.Contains(s.logs.String(), "203.0.113.0/24")
	s.NotContains(s.logs.String(), "203.0.113.5")

	s.Run("different path is a different bucket", func() {
		other := models.ClientKey{IP: s.key.IP, Path: "/api/other"}
		res, err := svc.Check(s.ctxAt(time.Second), s.policy, other)
		s.Require().NoError(err)
		s.True(res.Allowed)
	})
}

func (s *ServiceSuite) TestFallbackWhenStoreFails() {
	store := &flakyStore{InMemoryBucketStore: bucket.New(), down: true}
	svc, err := New(store,
		WithLogger(s.logger()),
		WithMetrics(s.metrics),
		WithFallback(2),
		WithProbeInterval(time.Minute),
	)
	s.Require().NoError(err)

	s.Run("each failed check is served by the fallback", func() {
		res, err := svc.Check(s.ctxAt(0), s.policy, s.key)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.True(res.Degraded)
	})

	s.Run("breaker opens and skips the primary", func() {
		_, err := svc.Check(s.ctxAt(0), s.policy, s.key)
		s.Require().NoError(err)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Degraded))

		calls := store.calls
		_, err = svc.Check(s.ctxAt(time.Second), s.policy, s.key)
		s.Require().NoError(err)
		s.Equal(calls+1, store.calls, "first check after opening probes once")

		_, err = svc.Check(s.ctxAt(2*time.Second), s.policy, s.key)
		s.Require().NoError(err)
		s.Equal(calls+1, store.calls, "no probe inside the interval")
	})

	s.Run("fallback still enforces the limit", func() {
		res, err := svc.Check(s.ctxAt(3*time.Second), s.policy, s.key)
		s.Require().NoError(err)
		s.True(res.Allowed)
		res, err = svc.Check(s.ctxAt(4*time.Second), s.policy, s.key)
		s.Require().NoError(err)
		s.False(res.Allowed)
		s.True(res.Degraded)
	})

	s.Run("recovers after consecutive successful probes", func() {
		store.down = false
		for i := range 3 {
			_, err := svc.Check(s.ctxAt(time.Duration(i+2)*time.Minute), s.policy, s.key)
			s.Require().NoError(err)
		}
		s.Equal(0.0, testutil.ToFloat64(s.metrics.Degraded))

		res, err := svc.Check(s.ctxAt(6*time.Minute), s.policy, s.key)
		s.Require().NoError(err)
		s.False(res.Degraded)
	})
}

func (s *ServiceSuite) TestSweep() {
	svc, err := New(bucket.New(), WithMetrics(s.metrics))
	s.Require().NoError(err)

	_, err = svc.Check(s.ctxAt(0), s.policy, s.key)
	s.Require().NoError(err)

	s.Equal(0, svc.Sweep(s.now.Add(time.Minute)))
	s.Equal(1, svc.Sweep(s.now.Add(11*time.Minute)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BucketsSwept))
}

func (s *ServiceSuite) TestRunSweeperRejectsNonPositiveInterval() {
	svc, err := New(bucket.New())
	s.Require().NoError(err)

	for _, interval := range []time.Duration{0, -time.Second} {
		s.Require().NotPanics(func() {
			s.Error(svc.RunSweeper(context.Background(), interval))
		})
	}
}

func (s *ServiceSuite) TestRunSweeperStopsWithContext() {
	svc, err := New(bucket.New())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.NoError(svc.RunSweeper(ctx, time.Minute))
}
