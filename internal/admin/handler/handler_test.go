package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"folio/internal/admin/handler"
	"folio/internal/admin/models"
	"folio/internal/admin/service"
	jwttoken "folio/internal/jwt_token"
	rlmiddleware "folio/internal/ratelimit/middleware"
	rlmodels "folio/internal/ratelimit/models"
	"folio/internal/ratelimit/service/requestlimit"
	"folio/internal/ratelimit/store/bucket"
	"folio/pkg/platform/audit"
	"folio/pkg/platform/audit/store/memory"
	adminmw "folio/pkg/platform/middleware/admin"
	"folio/pkg/testutil"
)

const testSecret = "test-secret"

type AdminHandlerSuite struct {
	suite.Suite
	jwt        *jwttoken.JWTService
	adminStore *memory.InMemoryStore
	router     chi.Router
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.jwt = jwttoken.NewJWTService(testSecret, "", "")
	s.adminStore = memory.NewInMemoryStore()
	contactStore := memory.NewInMemoryStore()
	s.Require().NoError(contactStore.Append(context.Background(), audit.Entry{Action: audit.ActionContactDelivery, Outcome: audit.OutcomeSent}))

	svc, err := service.New(
		audit.NewSink(s.adminStore, audit.WithLogger(logger)),
		audit.NewSink(contactStore, audit.WithLogger(logger)),
		filepath.Join(s.T().TempDir(), "docs"),
		service.WithLogger(logger),
		service.WithMaxUpload(4096),
	)
	s.Require().NoError(err)

	limiter, err := requestlimit.New(bucket.New())
	s.Require().NoError(err)
	rl := rlmiddleware.New(limiter, logger)

	s.router = chi.NewRouter()
	handler.New(svc, logger, handler.Guards{
		RequireAdmin: adminmw.RequireAdmin(s.jwt, []string{"Owner@Example.com"}, logger),
		LogsLimit:    rl.RateLimit(rlmodels.Policy{Name: rlmodels.PolicyAdmin, Requests: 3, Window: time.Minute}),
		UploadLimit:  rl.RateLimit(rlmodels.Policy{Name: rlmodels.PolicyUpload, Requests: 2, Window: time.Minute}),
	}).Register(s.router)
}

func (s *AdminHandlerSuite) bearer(req *http.Request, email string) *http.Request {
	token, err := s.jwt.GenerateAccessToken(email, time.Hour)
	s.Require().NoError(err)
	return testutil.WithBearer(req, token)
}

func (s *AdminHandlerSuite) upload(filename string, content []byte) *http.Request {
	return s.bearer(testutil.NewMultipartRequest(s.T(), "/api/admin/upload", "file", filename, content, nil), "owner@example.com")
}

func (s *AdminHandlerSuite) TestAuthorization() {
	s.Run("missing token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("token for a non-admin", func() {
		req := s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs"), "visitor@example.com")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("allowlist is case-insensitive", func() {
		req := s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs"), "OWNER@example.com")
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusOK, rr.Code)
	})
}

func (s *AdminHandlerSuite) TestLogs() {
	req := s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs?source=contact&limit=5"), "owner@example.com")
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusOK, rr.Code)
	entries := *testutil.UnmarshalResponse[[]audit.Entry](s.T(), rr)
	s.Require().Len(entries, 1)
	s.Equal(audit.OutcomeSent, entries[0].Outcome)

	req = s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs"), "owner@example.com")
	rr = testutil.DoRequest(s.router, req)
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *AdminHandlerSuite) TestLogsRateLimit() {
	for range 3 {
		rr := testutil.DoRequest(s.router, s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs"), "owner@example.com"))
		s.Require().Equal(http.StatusOK, rr.Code)
	}
	rr := testutil.DoRequest(s.router, s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/logs"), "owner@example.com"))
	s.Equal(http.StatusTooManyRequests, rr.Code)
	s.NotEmpty(rr.Header().Get("Retry-After"))
}

func (s *AdminHandlerSuite) TestUpload() {
	s.Run("rejects non-pdf", func() {
		rr := testutil.DoRequest(s.router, s.upload("notes.txt", []byte("%PDF-1.4")))
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Contains(rr.Body.String(), "PDF only")
	})

	s.Run("rejects oversized file", func() {
		content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), 5000)...)
		rr := testutil.DoRequest(s.router, s.upload("big.pdf", content))
		s.Equal(http.StatusRequestEntityTooLarge, rr.Code)
	})

	s.Run("third upload in a minute is rate limited", func() {
		rr := testutil.DoRequest(s.router, s.upload("cv.pdf", []byte("nope")))
		s.Equal(http.StatusTooManyRequests, rr.Code)
	})
}

func (s *AdminHandlerSuite) TestUploadStoresPDF() {
	rr := testutil.DoRequest(s.router, s.upload("cv.pdf", testutil.MinimalPDF()))

	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	result := testutil.UnmarshalResponse[models.UploadResult](s.T(), rr)
	s.True(result.OK)
	s.Equal(1, result.Pages)
	s.True(strings.HasPrefix(result.DocPath, "/docs/cv-"))

	entries, err := s.adminStore.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionUploadPDF, entries[0].Action)
	s.Equal("owner@example.com", entries[0].User)
}

func (s *AdminHandlerSuite) TestUploadRequiresFileField() {
	req := testutil.NewMultipartRequest(s.T(), "/api/admin/upload", "", "", nil, map[string]string{"title": "cv"})

	rr := testutil.DoRequest(s.router, s.bearer(req, "owner@example.com"))
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("file field required", testutil.UnmarshalErrorResponse(s.T(), rr).Description)
}

func (s *AdminHandlerSuite) TestMethodNotAllowed() {
	rr := testutil.DoRequest(s.router, s.bearer(testutil.NewRequest(s.T(), http.MethodDelete, "/api/admin/logs"), "owner@example.com"))
	s.Equal(http.StatusMethodNotAllowed, rr.Code)
	testutil.AssertErrorCode(s.T(), rr, "method_not_allowed")
}
