package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"folio/internal/challenge"
	"folio/internal/contact/models"
	"folio/internal/platform/metrics"
	rlmodels "folio/internal/ratelimit/models"
	"folio/internal/ratelimit/service/requestlimit"
	"folio/internal/ratelimit/store/bucket"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/requestcontext"
)

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, rlmodels.Policy, rlmodels.ClientKey) (*rlmodels.RateLimitResult, error) {
	return nil, errors.New("store down")
}

type GateSuite struct {
	suite.Suite
	now     time.Time
	gate    *Gate
	metrics *metrics.Metrics
	key     rlmodels.ClientKey
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.key = rlmodels.ClientKey{IP: "198.51.100.4", Path: "/api/contact"}
	s.metrics = metrics.New(prometheus.NewRegistry())

	limiter, err := requestlimit.New(bucket.New())
	s.Require().NoError(err)
	policy := rlmodels.Policy{Name: rlmodels.PolicyContact, Requests: 5, Window: 10 * time.Minute}
	s.gate, err = New(limiter, policy,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func (s *GateSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// validRaw carries a challenge issued five seconds before s.now.
func (s *GateSuite) validRaw() models.RawSubmission {
	issuer := challenge.NewIssuer(challenge.WithClock(func() time.Time { return s.now.Add(-5 * time.Second) }))
	ch := issuer.Issue(42)
	return models.RawSubmission{
		Name:        "Ada",
		Email:       "ada@example.com",
		Subject:     "Hello",
		Message:     "I liked your portfolio",
		Challenge:   &ch,
		HumanSolved: true,
	}
}

func (s *GateSuite) TestAcceptsValidSubmission() {
	sub, err := s.gate.Accept(s.ctx(), s.validRaw(), s.key)
	s.Require().NoError(err)
	s.Equal(&models.Submission{Name: "Ada", Email: "ada@example.com", Subject: "Hello", Message: "I liked your portfolio"}, sub)
}

func (s *GateSuite) TestCheckOrder() {
	s.Run("honeypot wins over everything else", func() {
		raw := models.RawSubmission{Website: "http://spam.example"}
		_, err := s.gate.Accept(s.ctx(), raw, s.key)
		s.True(dErrors.Is(err, dErrors.CodeBotSuspected))
	})

	s.Run("missing challenge fails before the human check", func() {
		raw := s.validRaw()
		raw.Challenge = nil
		raw.HumanSolved = false
		_, err := s.gate.Accept(s.ctx(), raw, rlmodels.ClientKey{IP: "198.51.100.5", Path: "/api/contact"})
		s.True(dErrors.Is(err, dErrors.CodeChallengeFailed))
	})

	s.Run("human check fails before validation", func() {
		raw := s.validRaw()
		raw.HumanSolved = false
		raw.Email = "nope"
		_, err := s.gate.Accept(s.ctx(), raw, rlmodels.ClientKey{IP: "198.51.100.6", Path: "/api/contact"})
		s.True(dErrors.Is(err, dErrors.CodeHumanCheckIncomplete))
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.GateRejections.WithLabelValues("bot_suspected")))
}

func (s *GateSuite) TestHoneypotDoesNotConsumeRateLimit() {
	for range 10 {
		_, err := s.gate.Accept(s.ctx(), models.RawSubmission{Website: "x"}, s.key)
		s.True(dErrors.Is(err, dErrors.CodeBotSuspected))
	}
	_, err := s.gate.Accept(s.ctx(), s.validRaw(), s.key)
	s.NoError(err)
}

func (s *GateSuite) TestRateLimitAfterFiveSubmissions() {
	for range 5 {
		_, err := s.gate.Accept(s.ctx(), s.validRaw(), s.key)
		s.Require().NoError(err)
	}
	_, err := s.gate.Accept(s.ctx(), s.validRaw(), s.key)
	s.Require().True(dErrors.Is(err, dErrors.CodeRateLimited))

	de, ok := dErrors.As(err)
	s.Require().True(ok)
	s.Equal(s.now.Add(10*time.Minute), de.ResetAt)
}

func (s *GateSuite) TestChallenge() {
	s.Run("tampered token", func() {
		raw := s.validRaw()
		raw.Challenge.FingerprintLength++
		_, err := s.gate.Accept(s.ctx(), raw, rlmodels.ClientKey{IP: "192.0.2.1", Path: "/api/contact"})
		s.True(dErrors.Is(err, dErrors.CodeChallengeFailed))
	})

	s.Run("submitted too fast", func() {
		ch := challenge.NewIssuer(challenge.WithClock(func() time.Time { return s.now.Add(-time.Second) })).Issue(42)
		raw := s.validRaw()
		raw.Challenge = &ch
		_, err := s.gate.Accept(s.ctx(), raw, rlmodels.ClientKey{IP: "192.0.2.2", Path: "/api/contact"})
		s.True(dErrors.Is(err, dErrors.CodeChallengeFailed))
	})
}

func (s *GateSuite) TestLimiterErrorFailsClosed() {
	g, err := New(brokenLimiter{}, rlmodels.Policy{Name: "contact-submit", Requests: 5, Window: time.Minute})
	s.Require().NoError(err)
	_, err = g.Accept(s.ctx(), s.validRaw(), s.key)
	s.True(dErrors.Is(err, dErrors.CodeInternal))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		raw     models.RawSubmission
		want    *models.Submission
		wantErr map[string]string
	}{
		{
			name: "strips markup and header injection",
			raw: models.RawSubmission{
				Name:    "Eve<script>\r\nBcc: x@y.z",
				Email:   "  eve@example.com ",
				Subject: "Hi%0d%0aBcc: a@b.c",
				Message: "line one\nline two",
			},
			want: &models.Submission{
				Name:    "Evescript Bcc: x@y.z",
				Email:   "eve@example.com",
				Subject: "Hi Bcc: a@b.c",
				Message: "line one line two",
			},
		},
		{
			name: "blank subject gets the default",
			raw:  models.RawSubmission{Name: "A", Email: "a@b.co", Message: "m"},
			want: &models.Submission{Name: "A", Email: "a@b.co", Subject: models.DefaultSubject, Message: "m"},
		},
		{
			name: "long fields are truncated",
			raw:  models.RawSubmission{Name: strings.Repeat("n", 200), Email: "a@b.co", Message: strings.Repeat("m", 3000)},
			want: &models.Submission{Name: strings.Repeat("n", 80), Email: "a@b.co", Subject: models.DefaultSubject, Message: strings.Repeat("m", 2000)},
		},
		{
			name:    "missing fields",
			raw:     models.RawSubmission{Name: "<>", Message: " "},
			wantErr: map[string]string{"name": "required", "email": "required", "message": "required"},
		},
		{
			name:    "invalid email",
			raw:     models.RawSubmission{Name: "A", Email: "a b@c.d", Message: "m"},
			wantErr: map[string]string{"email": "invalid"},
		},
		{
			name:    "email carrying a second address",
			raw:     models.RawSubmission{Name: "A", Email: "a@b.co>\vBcc:<eve@evil.io", Message: "m"},
			wantErr: map[string]string{"email": "invalid"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.raw)
			if tt.wantErr != nil {
				de, ok := dErrors.As(err)
				if !ok || de.Code != dErrors.CodeValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				if len(de.Details) != len(tt.wantErr) {
					t.Fatalf("details = %v, want %v", de.Details, tt.wantErr)
				}
				for k, v := range tt.wantErr {
					if de.Details[k] != v {
						t.Fatalf("details[%s] = %q, want %q", k, de.Details[k], v)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != *tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"ada@example.com":                  true,
		"a@b.c":                            true,
		"no-at.example.com":                false,
		"two@@example.com":                 false,
		"space @example.com":               false,
		"":                                 false,
		strings.Repeat("a", 250) + "@b.co": false,
		"ada@example.com>":                 false,
		"<ada@example.com":                 false,
		"ada\v@example.com":                false,
		"ada\x00@example.com":              false,
		"ada\u0085@example.com":            false,
		"ada@example.com,eve@evil.io":      false,
		"ada@example.com;x":                false,
		"\"ada\"@example.com":              false,
	}
	for email, want := range cases {
		if got := ValidEmail(email); got != want {
			t.Errorf("ValidEmail(%q) = %v, want %v", email, got, want)
		}
	}
}
