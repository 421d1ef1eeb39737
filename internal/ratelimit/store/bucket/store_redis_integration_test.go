//go:build integration

package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"folio/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedis(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisBucketStoreSuite) TestFixedWindow() {
	for i := range 5 {
		res, err := s.store.Allow(s.ctx, "contact-submit:203.0.113.5:/api/contact", 5, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(4-i, res.Remaining)
	}

	res, err := s.store.Allow(s.ctx, "contact-submit:203.0.113.5:/api/contact", 5, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)
	s.WithinDuration(time.Now().Add(time.Minute), res.ResetAt, 2*time.Second)

	count, err := s.store.GetCurrentCount(s.ctx, "contact-submit:203.0.113.5:/api/contact")
	s.Require().NoError(err)
	s.Equal(6, count)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	_, err := s.store.Allow(s.ctx, "k:expire", 1, 200*time.Millisecond)
	s.Require().NoError(err)
	denied, err := s.store.Allow(s.ctx, "k:expire", 1, 200*time.Millisecond)
	s.Require().NoError(err)
	s.False(denied.Allowed)

	s.Eventually(func() bool {
		res, err := s.store.Allow(s.ctx, "k:expire", 1, 200*time.Millisecond)
		return err == nil && res.Allowed
	}, 3*time.Second, 100*time.Millisecond)
}

func (s *RedisBucketStoreSuite) TestReset() {
	_, err := s.store.Allow(s.ctx, "k:reset", 1, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(s.ctx, "k:reset"))

	res, err := s.store.Allow(s.ctx, "k:reset", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisBucketStoreSuite) TestConcurrentNeverOvershoots() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Go(func() {
			res, err := s.store.Allow(s.ctx, "k:concurrent", 20, time.Minute)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	s.Equal(20, allowed)
}
