// Package mail delivers accepted contact submissions to the site owner over
// SMTP, walking a primary attempt and a configured fallback plan.
package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"folio/internal/contact/models"
	"folio/internal/notify"
	"folio/internal/platform/metrics"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/platform/audit"
	"folio/pkg/platform/privacy"
	"folio/pkg/requestcontext"
)

const defaultAttemptTimeout = 10 * time.Second

// AuditSink records delivery outcomes. Append never fails from the caller's view.
type AuditSink interface {
	Append(ctx context.Context, entry audit.Entry)
}

// Publisher accepts notification events without blocking.
type Publisher interface {
	Publish(ctx context.Context, ev notify.Event)
}

// Dispatcher sends one message per accepted submission.
type Dispatcher struct {
	transport      Transport
	plan           []Attempt
	from           string
	to             string
	dryRun         bool
	attemptTimeout time.Duration
	audit          AuditSink
	publisher      Publisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
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

// WithDryRun makes delivery failures and missing credentials succeed after
// recording the submission locally.
func WithDryRun(dryRun bool) Option {
	return func(d *Dispatcher) {
		d.dryRun = dryRun
	}
}

func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		d.publisher = p
	}
}

// New builds a dispatcher. A nil transport means SMTP credentials are missing.
func New(transport Transport, plan []Attempt, from, to string, sink AuditSink, opts ...Option) (*Dispatcher, error) {
	if sink == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "audit sink is required")
	}
	if transport != nil && len(plan) == 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "delivery plan is empty")
	}
	d := &Dispatcher{
		transport:      transport,
		plan:           plan,
		from:           from,
		to:             to,
		audit:          sink,
		attemptTimeout: defaultAttemptTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Dispatcher) configured() bool {
	return d.transport != nil && d.from != "" && d.to != ""
}

// Send delivers sub through the plan. Every failed attempt and the final
// outcome are written to the audit sink, and the final outcome is published
// as a notification whether or not delivery succeeded.
func (d *Dispatcher) Send(ctx context.Context, sub *models.Submission) (*models.Delivery, error) {
	if !d.configured() {
		if d.dryRun {
			return d.recordDryRun(ctx, sub, audit.OutcomeDryRun), nil
		}
		d.record(ctx, sub, audit.Entry{Outcome: audit.OutcomeFailed, ErrorCode: "misconfigured"})
		d.publish(ctx, sub, audit.OutcomeFailed)
		d.observeOutcome(audit.OutcomeFailed)
		d.logger.ErrorContext(ctx, "email service not configured")
		return nil, dErrors.New(dErrors.CodeMisconfigured, "Email service not configured")
	}

	msg := NewMessage(sub, d.from, d.to, requestcontext.Now(ctx))
	var lastErr error
	for _, attempt := range d.plan {
		err := d.try(ctx, attempt, msg)
		if err == nil {
			d.record(ctx, sub, audit.Entry{Outcome: audit.OutcomeSent, Attempt: attempt.Label()})
			d.publish(ctx, sub, audit.OutcomeSent)
			d.observeOutcome(audit.OutcomeSent)
			d.logger.InfoContext(ctx, "contact email sent",
				"attempt", attempt.Label(),
				"request_id", requestcontext.RequestID(ctx),
			)
			return &models.Delivery{}, nil
		}
		lastErr = err
		code := ErrorCode(err)
		d.record(ctx, sub, audit.Entry{Outcome: audit.OutcomeAttemptFailed, ErrorCode: code, Attempt: attempt.Label()})
		d.logger.WarnContext(ctx, "smtp attempt failed",
			"attempt", attempt.Label(),
			"error_code", code,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	if d.dryRun {
		outcome := audit.OutcomeDryRunPrimary
		if len(d.plan) > 1 {
			outcome = audit.OutcomeDryRunAfterRetry
		}
		return d.recordDryRun(ctx, sub, outcome), nil
	}

	d.record(ctx, sub, audit.Entry{Outcome: audit.OutcomeFailed, ErrorCode: ErrorCode(lastErr)})
	d.publish(ctx, sub, audit.OutcomeFailed)
	d.observeOutcome(audit.OutcomeFailed)
	return nil, dErrors.Wrap(lastErr, dErrors.CodeDeliveryFailed, "Email delivery failed")
}

func (d *Dispatcher) try(ctx context.Context, attempt Attempt, msg *Message) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	start := time.Now()
	err := d.transport.Send(attemptCtx, attempt, msg)
	if d.metrics != nil {
		d.metrics.ObserveMailAttempt(attempt.Label(), err == nil, time.Since(start).Seconds())
	}
	return err
}

func (d *Dispatcher) recordDryRun(ctx context.Context, sub *models.Submission, outcome audit.Outcome) *models.Delivery {
	d.record(ctx, sub, audit.Entry{Outcome: outcome, Note: string(outcome)})
	d.publish(ctx, sub, outcome)
	d.observeOutcome(outcome)
	d.logger.InfoContext(ctx, "contact recorded without delivery",
		"note", string(outcome),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.Delivery{DryRun: true, Note: string(outcome)}
}

// record fills the submitter fields shared by every line of one submission.
func (d *Dispatcher) record(ctx context.Context, sub *models.Submission, entry audit.Entry) {
	entry.Action = audit.ActionContactDelivery
	entry.EmailMasked = privacy.MaskEmail(sub.Email)
	entry.IPPrefix = privacy.AnonymizeIP(requestcontext.ClientIP(ctx))
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		entry.BotUserAgent = useragent.New(ua).Bot()
	}
	d.audit.Append(ctx, entry)
}

func (d *Dispatcher) publish(ctx context.Context, sub *models.Submission, outcome audit.Outcome) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(ctx, notify.Event{
		Name:    sub.Name,
		Email:   sub.Email,
		Subject: sub.Subject,
		Outcome: string(outcome),
		DryRun:  outcome.IsDryRun(),
		At:      requestcontext.Now(ctx),
	})
}

func (d *Dispatcher) observeOutcome(outcome audit.Outcome) {
	if d.metrics != nil {
		d.metrics.RecordOutcome(string(outcome))
	}
}
