// Package gate decides whether a contact submission may be delivered. Checks
// run in a fixed order and the first failure wins: honeypot, rate limit,
// challenge, human check, field validation.
package gate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"folio/internal/challenge"
	"folio/internal/contact/models"
	"folio/internal/platform/metrics"
	rlmodels "folio/internal/ratelimit/models"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/platform/privacy"
	folioStrings "folio/pkg/platform/strings"
	"folio/pkg/requestcontext"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RateLimiter counts one submission against a policy.
type RateLimiter interface {
	Check(ctx context.Context, policy rlmodels.Policy, key rlmodels.ClientKey) (*rlmodels.RateLimitResult, error)
}

type Gate struct {
	limiter  RateLimiter
	policy   rlmodels.Policy
	minDelay time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithMinDelay sets how old a challenge must be at submission time.
func WithMinDelay(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.minDelay = d
		}
	}
}

func New(limiter RateLimiter, policy rlmodels.Policy, opts ...Option) (*Gate, error) {
	if limiter == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "rate limiter is required")
	}
	g := &Gate{
		limiter:  limiter,
		policy:   policy,
		minDelay: challenge.DefaultMinDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Accept runs every check against raw for the client identified by key and
// returns the sanitized submission.
func (g *Gate) Accept(ctx context.Context, raw models.RawSubmission, key rlmodels.ClientKey) (*models.Submission, error) {
	if strings.TrimSpace(raw.Website) != "" {
		return nil, g.reject(ctx, key, dErrors.New(dErrors.CodeBotSuspected, "Invalid submission"))
	}

	result, err := g.limiter.Check(ctx, g.policy, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
	}
	if !result.Allowed {
		return nil, g.reject(ctx, key, dErrors.RateLimited("Too many requests", result.ResetAt))
	}

	if !challenge.VerifyAt(raw.Challenge, g.minDelay, requestcontext.Now(ctx)) {
		return nil, g.reject(ctx, key, dErrors.New(dErrors.CodeChallengeFailed, "Challenge failed"))
	}

	if !raw.HumanSolved {
		return nil, g.reject(ctx, key, dErrors.New(dErrors.CodeHumanCheckIncomplete, "Human verification incomplete"))
	}

	sub, err := Sanitize(raw)
	if err != nil {
		return nil, g.reject(ctx, key, err)
	}
	return sub, nil
}

// Sanitize normalizes raw fields and validates the result.
func Sanitize(raw models.RawSubmission) (*models.Submission, error) {
	subject := raw.Subject
	if strings.TrimSpace(subject) == "" {
		subject = models.DefaultSubject
	}
	sub := &models.Submission{
		Name:    folioStrings.SanitizeText(raw.Name, models.MaxNameLength),
		Email:   strings.TrimSpace(raw.Email),
		Subject: folioStrings.SanitizeText(subject, models.MaxSubjectLength),
		Message: folioStrings.SanitizeText(raw.Message, models.MaxMessageLength),
	}
	if sub.Subject == "" {
		sub.Subject = models.DefaultSubject
	}

	missing := map[string]string{}
	if sub.Name == "" {
		missing["name"] = "required"
	}
	if sub.Email == "" {
		missing["email"] = "required"
	}
	if sub.Message == "" {
		missing["message"] = "required"
	}
	if len(missing) > 0 {
		return nil, dErrors.WithDetails(dErrors.CodeValidation, "Missing required fields", missing)
	}
	if !ValidEmail(sub.Email) {
		return nil, dErrors.WithDetails(dErrors.CodeValidation, "Invalid email", map[string]string{"email": "invalid"})
	}
	return sub, nil
}

// ValidEmail reports whether email has a plausible shape and fits the length
// limit. The address ends up in a Reply-To header, so control characters,
// whitespace and address-list delimiters are refused.
func ValidEmail(email string) bool {
	if email == "" || len(email) > models.MaxEmailLength {
		return false
	}
	if strings.ContainsFunc(email, unsafeEmailRune) {
		return false
	}
	return emailPattern.MatchString(email)
}

func unsafeEmailRune(r rune) bool {
	return unicode.IsControl(r) || unicode.IsSpace(r) || strings.ContainsRune(`<>,;"`, r)
}

func (g *Gate) reject(ctx context.Context, key rlmodels.ClientKey, err error) error {
	code := dErrors.CodeOf(err)
	g.logger.InfoContext(ctx, "contact submission rejected",
		"reason", string(code),
		"ip_prefix", privacy.AnonymizeIP(key.IP),
		"request_id", requestcontext.RequestID(ctx),
	)
	if g.metrics != nil {
		g.metrics.RecordRejection(string(code))
	}
	return err
}
