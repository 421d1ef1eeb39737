// Package service implements the admin operations: reading the action and
// contact logs and storing uploaded PDF documents.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"folio/internal/admin/models"
	"folio/internal/platform/metrics"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/platform/audit"
	"folio/pkg/requestcontext"
)

var (
	unsafeNameChars = regexp.MustCompile(`(?i)[^a-z0-9._-]`)
	pdfSuffix       = regexp.MustCompile(`(?i)\.pdf$`)
)

// Log is an append-and-tail JSONL log.
type Log interface {
	Append(ctx context.Context, entry audit.Entry)
	Tail(ctx context.Context, n int) ([]audit.Entry, error)
}

type Service struct {
	adminLog   Log
	contactLog Log
	docsDir    string
	maxUpload  int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithMaxUpload(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func New(adminLog, contactLog Log, docsDir string, opts ...Option) (*Service, error) {
	if adminLog == nil || contactLog == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "admin and contact logs are required")
	}
	if docsDir == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "docs dir is required")
	}
	s := &Service{
		adminLog:   adminLog,
		contactLog: contactLog,
		docsDir:    docsDir,
		maxUpload:  models.DefaultMaxUpload,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxUpload is the largest accepted document in bytes.
func (s *Service) MaxUpload() int64 {
	return s.maxUpload
}

// ParseLimit turns the raw limit query value into [1, MaxLogLimit]. Missing,
// zero or non-numeric values give DefaultLogLimit.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n == 0 {
		return models.DefaultLogLimit
	}
	return min(max(n, 1), models.MaxLogLimit)
}

// Logs returns the newest entries of the requested log, newest first.
func (s *Service) Logs(ctx context.Context, source string, limit int) ([]audit.Entry, error) {
	var log Log
	switch source {
	case "", models.SourceAdmin:
		log = s.adminLog
	case models.SourceContact:
		log = s.contactLog
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "source must be admin or contact")
	}

	entries, err := log.Tail(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to read logs")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

// UploadPDF validates data as a PDF and stores it under the docs dir with a
// sanitized, timestamped name.
func (s *Service) UploadPDF(ctx context.Context, filename string, data []byte) (*models.UploadResult, error) {
	result, err := s.uploadPDF(ctx, filename, data)
	if s.metrics != nil {
		s.metrics.RecordUpload(err == nil)
	}
	return result, err
}

func (s *Service) uploadPDF(ctx context.Context, filename string, data []byte) (*models.UploadResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, dErrors.New(dErrors.CodeBadRequest, "PDF only")
	}
	if len(data) == 0 || int64(len(data)) > s.maxUpload {
		return nil, dErrors.New(dErrors.CodeBadRequest, "Invalid PDF size")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "Not a PDF")
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		s.logger.WarnContext(ctx, "uploaded pdf failed validation",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "PDF could not be parsed")
	}

	name := fmt.Sprintf("%s-%d.pdf", SafeBaseName(filename), requestcontext.Now(ctx).UnixMilli())
	if err := os.MkdirAll(s.docsDir, 0o755); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}
	if err := os.WriteFile(filepath.Join(s.docsDir, name), data, 0o644); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	s.adminLog.Append(ctx, audit.Entry{
		Action: audit.ActionUploadPDF,
		User:   requestcontext.AdminEmail(ctx),
		Detail: map[string]any{"file": name, "size": len(data), "pages": pdfCtx.PageCount},
	})
	s.logger.InfoContext(ctx, "document uploaded",
		"file", name,
		"pages", pdfCtx.PageCount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.UploadResult{OK: true, DocPath: "/docs/" + name, Pages: pdfCtx.PageCount}, nil
}

// SafeBaseName replaces characters outside [a-z0-9._-] and drops a trailing
// .pdf extension. Blank names become "document".
func SafeBaseName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || strings.TrimSpace(base) == "" {
		base = "document.pdf"
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")
	return pdfSuffix.ReplaceAllString(base, "")
}
