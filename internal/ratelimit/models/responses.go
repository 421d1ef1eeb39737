package models

import "time"

// RateLimitExceededResponse is the API response when a limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"error_description"`
	RetryAfter int       `json:"retry_after"` // seconds
	ResetAt    time.Time `json:"resetAt"`
}
