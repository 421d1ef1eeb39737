package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"folio/internal/challenge"
	"folio/internal/contact/handler/mocks"
	"folio/internal/contact/models"
	rlmodels "folio/internal/ratelimit/models"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/contact-mocks.go -package=mocks Service
type ContactHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestContactHandlerSuite(t *testing.T) {
	suite.Run(t, new(ContactHandlerSuite))
}

func (s *ContactHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger, 1024).Register(s.router)
}

func (s *ContactHandlerSuite) TestSubmit() {
	s.Run("accepted submission returns ok", func() {
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any(), rlmodels.ClientKey{IP: "203.0.113.9", Path: "/api/contact"}).
			DoAndReturn(func(_ context.Context, raw models.RawSubmission, _ rlmodels.ClientKey) (*models.Delivery, error) {
				s.Equal("Ada", raw.Name)
				s.True(raw.HumanSolved)
				s.Require().NotNil(raw.Challenge)
				s.Equal("tok", raw.Challenge.Token)
				return &models.Delivery{}, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/contact", map[string]any{
			"name":        "Ada",
			"email":       "ada@example.com",
			"message":     "hi",
			"humanSolved": true,
			"challenge":   map[string]any{"issuedAt": 1, "salt": "s", "fingerprintLength": 3, "token": "tok"},
		})
		req.RemoteAddr = "203.0.113.9:5555"
		rr := testutil.DoRequest(s.router, req)

		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"ok":true}`, rr.Body.String())
	})

	s.Run("dry run is reported", func() {
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).Return(&models.Delivery{DryRun: true, Note: "dry_run"}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/contact", map[string]any{"name": "Ada"}))
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"ok":true,"dryRun":true}`, rr.Body.String())
	})
}

func (s *ContactHandlerSuite) TestSubmitErrors() {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"honeypot", dErrors.New(dErrors.CodeBotSuspected, "Invalid submission"), http.StatusBadRequest, "bot_suspected"},
		{"challenge", dErrors.New(dErrors.CodeChallengeFailed, "Challenge failed"), http.StatusBadRequest, "challenge_failed"},
		{"human", dErrors.New(dErrors.CodeHumanCheckIncomplete, "Human verification incomplete"), http.StatusBadRequest, "human_check_incomplete"},
		{"misconfigured", dErrors.New(dErrors.CodeMisconfigured, "Email service not configured"), http.StatusInternalServerError, "service_misconfigured"},
		{"delivery", dErrors.New(dErrors.CodeDeliveryFailed, "Email delivery failed"), http.StatusBadGateway, "delivery_failed"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tc.err)

			rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/contact", map[string]any{}))
			s.Equal(tc.status, rr.Code)
			s.Equal(tc.code, testutil.UnmarshalErrorResponse(s.T(), rr).Error)
		})
	}

	s.Run("rate limited sets Retry-After", func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.RateLimited("Too many requests", now.Add(90*time.Second)))

		req := testutil.WithTime(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/contact", map[string]any{}), now)
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusTooManyRequests, rr.Code)
		s.Equal("90", rr.Header().Get("Retry-After"))
		s.Contains(rr.Body.String(), `"resetAt"`)
	})

	s.Run("validation details are returned", func() {
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.WithDetails(dErrors.CodeValidation, "Invalid email", map[string]string{"email": "invalid"}))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/contact", map[string]any{}))
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Contains(rr.Body.String(), `"details":{"email":"invalid"}`)
	})
}

func (s *ContactHandlerSuite) TestRejectsBadRequests() {
	s.Run("wrong method", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/contact"))
		s.Equal(http.StatusMethodNotAllowed, rr.Code)
		s.Equal(http.MethodPost, rr.Header().Get("Allow"))
	})

	s.Run("malformed JSON", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/contact", "{"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("oversized body", func() {
		body := `{"message":"` + strings.Repeat("a", 2048) + `"}`
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/contact", body))
		s.Equal(http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func (s *ContactHandlerSuite) TestChallenge() {
	s.service.EXPECT().IssueChallenge(len("Mozilla/5.0")).Return(challenge.Challenge{IssuedAt: 42, Salt: "abc", FingerprintLength: 11, Token: "t"})

	req := testutil.NewRequest(s.T(), http.MethodGet, "/api/contact/challenge")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"issuedAt":42,"salt":"abc","fingerprintLength":11,"token":"t"}`, rr.Body.String())
}
