// Package audit records contact delivery outcomes and admin actions as
// append-only JSON lines.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"folio/pkg/requestcontext"
)

// Sink appends entries to a Store and never reports failure to the caller:
// a broken log must not turn a delivered message into an error response.
type Sink struct {
	store    Store
	logger   *slog.Logger
	failures prometheus.Counter
}

type SinkOption func(*Sink)

func WithLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithFailureCounter counts appends the store rejected.
func WithFailureCounter(c prometheus.Counter) SinkOption {
	return func(s *Sink) {
		s.failures = c
	}
}

func NewSink(store Store, opts ...SinkOption) *Sink {
	s := &Sink{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append fills ID, timestamp, and request ID when absent and writes the entry.
func (s *Sink) Append(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit append failed",
			"action", entry.Action,
			"outcome", entry.Outcome,
			"error", err,
		)
		if s.failures != nil {
			s.failures.Inc()
		}
	}
}

// Tail returns up to n entries, newest first.
func (s *Sink) Tail(ctx context.Context, n int) ([]Entry, error) {
	return s.store.Tail(ctx, n)
}
