package models

import (
	"time"

	dErrors "folio/pkg/domain-errors"
)

// Policy names a fixed-window limit applied to one class of routes.
type Policy struct {
	Name     string
	Requests int
	Window   time.Duration
}

// Built-in policy names.
const (
	PolicyContact = "contact-submit"
	PolicyAdmin   = "admin"
	PolicyUpload  = "upload"
)

// NewPolicy validates and builds a Policy.
func NewPolicy(name string, requests int, window time.Duration) (Policy, error) {
	if name == "" {
		return Policy{}, dErrors.New(dErrors.CodeBadRequest, "policy name cannot be empty")
	}
	if requests <= 0 {
		return Policy{}, dErrors.New(dErrors.CodeBadRequest, "policy requests must be positive")
	}
	if window <= 0 {
		return Policy{}, dErrors.New(dErrors.CodeBadRequest, "policy window must be positive")
	}
	return Policy{Name: name, Requests: requests, Window: window}, nil
}

// RateBucket is one fixed-window counter. It is created lazily on the first
// request for its key and overwritten once now is past ResetAt.
type RateBucket struct {
	Key     string
	Count   int
	ResetAt time.Time
}

// Expired reports whether the window has closed at now.
func (b *RateBucket) Expired(now time.Time) bool {
	return now.After(b.ResetAt)
}

// Result builds the check outcome for this bucket at now.
func (b *RateBucket) Result(limit int, now time.Time) *RateLimitResult {
	res := &RateLimitResult{
		Allowed:   b.Count <= limit,
		Limit:     limit,
		Remaining: max(limit-b.Count, 0),
		ResetAt:   b.ResetAt,
	}
	if !res.Allowed {
		res.RetryAfter = RetryAfterSeconds(b.ResetAt, now)
	}
	return res
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	// Degraded is set when the result came from the in-memory fallback.
	Degraded bool `json:"-"`
}

// RetryAfterSeconds rounds the wait until resetAt up to whole seconds, at least 1.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
