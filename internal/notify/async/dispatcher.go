// Package async fans contact events out to notifiers on a background worker
// so that request handlers never wait on a third-party API.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"folio/internal/notify"
	"folio/internal/platform/metrics"
	"folio/pkg/requestcontext"
)

const (
	defaultQueueSize = 64
	defaultTimeout   = 5 * time.Second
)

// Dispatcher buffers events in a bounded queue. When the queue is full or the
// rate limit is exceeded the event is dropped and counted.
type Dispatcher struct {
	notifiers []notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	timeout   time.Duration
	queueSize int

	mu     sync.RWMutex
	closed bool
	queue  chan notify.Event
	done   chan struct{}
	once   sync.Once
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithRate caps accepted events per second. A non-positive rate disables the cap.
func WithRate(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithTimeout bounds each notifier call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// New starts the worker goroutine. Call Close to drain and stop it.
func New(notifiers []notify.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notifiers: notifiers,
		logger:    slog.Default(),
		timeout:   defaultTimeout,
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan notify.Event, d.queueSize)
	go d.work()
	return d
}

// Publish enqueues ev without blocking.
func (d *Dispatcher) Publish(ctx context.Context, ev notify.Event) {
	if len(d.notifiers) == 0 {
		return
	}
	if d.limiter != nil && !d.limiter.Allow() {
		d.drop(ctx, "rate_limited")
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, "closed")
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.drop(ctx, "queue_full")
	}
}

// Close stops accepting events and waits until queued events are delivered.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}

func (d *Dispatcher) work() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev notify.Event) {
	for _, n := range d.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := n.Notify(ctx, ev); err != nil {
			d.logger.WarnContext(ctx, "notification failed",
				"error", err,
				"outcome", ev.Outcome,
			)
			if d.metrics != nil {
				d.metrics.IncrementNotifyFailures()
			}
		}
		cancel()
	}
}

func (d *Dispatcher) drop(ctx context.Context, reason string) {
	d.logger.WarnContext(ctx, "notification dropped",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if d.metrics != nil {
		d.metrics.IncrementNotifyDropped(reason)
	}
}
