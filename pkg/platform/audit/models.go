package audit

import (
	"context"
	"time"
)

// Outcome records what happened to a contact submission or one delivery attempt.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeDryRun           Outcome = "dry_run"
	OutcomeDryRunPrimary    Outcome = "dry_run_primary"
	OutcomeDryRunAfterRetry Outcome = "dry_run_after_retry"
	OutcomeFailed           Outcome = "failed"
	OutcomeAttemptFailed    Outcome = "attempt_failed"
)

// IsDryRun reports whether the outcome marks a locally recorded submission.
func (o Outcome) IsDryRun() bool {
	switch o {
	case OutcomeDryRun, OutcomeDryRunPrimary, OutcomeDryRunAfterRetry:
		return true
	}
	return false
}

// Actions written to the logs.
const (
	ActionContactDelivery = "contact_delivery"
	ActionUploadPDF       = "upload_pdf"
	ActionParseError      = "parse_error"
)

// Entry is one append-only line in a JSONL log. Contact delivery lines carry
// only masked or prefixed personal data; admin action lines carry the admin
// email and a free-form detail map.
type Entry struct {
	ID           string         `json:"id,omitempty"`
	Timestamp    time.Time      `json:"ts"`
	Action       string         `json:"action"`
	Outcome      Outcome        `json:"outcome,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	Attempt      string         `json:"attempt,omitempty"`
	EmailMasked  string         `json:"email,omitempty"`
	IPPrefix     string         `json:"ipPrefix,omitempty"`
	BotUserAgent bool           `json:"botUserAgent,omitempty"`
	Note         string         `json:"note,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	User         string         `json:"user,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	Raw          string         `json:"raw,omitempty"`
}

// Store persists entries and reads back the newest ones.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Tail(ctx context.Context, n int) ([]Entry, error)
}
