package bucket

import (
	"context"
	"sync"
	"time"

	"folio/internal/ratelimit/models"
	"folio/pkg/requestcontext"
)

// InMemoryBucketStore implements BucketStore with a mutex-guarded map of
// fixed windows. "Now" comes from the request context so every check in a
// request agrees on the time.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*models.RateBucket
}

// New creates a new in-memory bucket store.
func New() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		buckets: make(map[string]*models.RateBucket),
	}
}

// Allow counts one request. The first request, or the first after the window
// closed, starts a fresh window with count 1.
func (s *InMemoryBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[key]
	if b == nil || b.Expired(now) {
		b = &models.RateBucket{Key: key, ResetAt: now.Add(window)}
		s.buckets[key] = b
	}
	b.Count++
	return b.Result(limit, now), nil
}

// Reset clears the rate limit counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// GetCurrentCount returns the count in the key's open window, 0 if none.
func (s *InMemoryBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[key]
	if b == nil || b.Expired(now) {
		return 0, nil
	}
	return b.Count, nil
}

// Sweep evicts buckets whose window closed before now and returns how many.
func (s *InMemoryBucketStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if b.Expired(now) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked buckets.
func (s *InMemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
