// Package notify pushes contact events to external channels. Delivery is
// best effort: failures are logged and counted, never returned to a request.
package notify

import (
	"context"
	"time"
)

// Event describes one accepted contact submission.
type Event struct {
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Subject string    `json:"subject"`
	Outcome string    `json:"outcome"`
	DryRun  bool      `json:"dryRun"`
	At      time.Time `json:"at"`
}

//go:generate mockgen -source=notify.go -destination=mocks/notifier-mocks.go -package=mocks Notifier

// Notifier delivers an event to one external channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
