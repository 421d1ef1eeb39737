package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"folio/internal/admin/models"
	"folio/internal/admin/service"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/platform/audit"
	"folio/pkg/platform/httputil"
	"folio/pkg/platform/middleware/request"
)

// multipartOverhead is the room left for multipart framing around the file.
const multipartOverhead = 64 << 10

// Service defines the admin operations the handler needs.
type Service interface {
	Logs(ctx context.Context, source string, limit int) ([]audit.Entry, error)
	UploadPDF(ctx context.Context, filename string, data []byte) (*models.UploadResult, error)
	MaxUpload() int64
}

// Guards are the middlewares in front of the admin routes. Nil guards pass through.
type Guards struct {
	RequireAdmin func(http.Handler) http.Handler
	LogsLimit    func(http.Handler) http.Handler
	UploadLimit  func(http.Handler) http.Handler
}

// Handler serves the admin log and upload endpoints.
type Handler struct {
	logger *slog.Logger
	admin  Service
	guards Guards
}

func New(admin Service, logger *slog.Logger, guards Guards) *Handler {
	return &Handler{
		logger: logger,
		admin:  admin,
		guards: guards,
	}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(orPass(h.guards.RequireAdmin))
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed, "Method not allowed"))
		})
		r.With(orPass(h.guards.LogsLimit)).Get("/logs", h.handleLogs)
		r.With(orPass(h.guards.UploadLimit)).Post("/upload", h.handleUpload)
	})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	entries, err := h.admin.Logs(ctx, q.Get("source"), service.ParseLimit(q.Get("limit")))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read logs",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	limit := h.admin.MaxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	filename, data, err := readFilePart(r, "file", limit)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid upload request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.admin.UploadPDF(ctx, filename, data)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// readFilePart returns the first multipart file part named field, reading at
// most limit bytes of it.
func readFilePart(r *http.Request, field string, limit int64) (string, []byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "multipart form required")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, dErrors.New(dErrors.CodeBadRequest, "file field required")
		}
		if err != nil {
			return "", nil, uploadReadError(err)
		}
		if part.FormName() != field || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		_ = part.Close()
		if err != nil {
			return "", nil, uploadReadError(err)
		}
		if int64(len(data)) > limit {
			return "", nil, dErrors.New(dErrors.CodePayloadTooLarge, "Invalid PDF size")
		}
		return part.FileName(), data, nil
	}
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.Wrap(err, dErrors.CodePayloadTooLarge, "Invalid PDF size")
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed multipart body")
}

func orPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
