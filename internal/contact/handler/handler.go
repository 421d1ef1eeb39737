package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"folio/internal/challenge"
	"folio/internal/contact/models"
	rlmodels "folio/internal/ratelimit/models"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/platform/httputil"
	"folio/pkg/platform/middleware/request"
	"folio/pkg/requestcontext"
)

// Service defines the contact operations the handler needs.
type Service interface {
	Submit(ctx context.Context, raw models.RawSubmission, key rlmodels.ClientKey) (*models.Delivery, error)
	IssueChallenge(fingerprintLength int) challenge.Challenge
}

// Handler serves the public contact endpoints.
type Handler struct {
	logger    *slog.Logger
	contact   Service
	bodyLimit int64
}

func New(contact Service, logger *slog.Logger, bodyLimit int64) *Handler {
	return &Handler{
		logger:    logger,
		contact:   contact,
		bodyLimit: bodyLimit,
	}
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.With(request.BodyLimit(h.bodyLimit)).HandleFunc("/api/contact", h.handleContact)
	r.Get("/api/contact/challenge", h.handleChallenge)
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed, "Method not allowed"))
		return
	}
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	raw, err := httputil.DecodeJSON[models.RawSubmission](r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid contact request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	key := rlmodels.KeyFromRequest(r)
	delivery, err := h.contact.Submit(ctx, *raw, key)
	if err != nil {
		h.writeSubmitError(ctx, w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.Response{OK: true, DryRun: delivery.DryRun})
}

func (h *Handler) writeSubmitError(ctx context.Context, w http.ResponseWriter, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeRateLimited:
		if de, ok := dErrors.As(err); ok && !de.ResetAt.IsZero() {
			retry := rlmodels.RetryAfterSeconds(de.ResetAt, requestcontext.Now(ctx))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	case dErrors.CodeInternal, dErrors.CodeMisconfigured, dErrors.CodeDeliveryFailed:
		h.logger.ErrorContext(ctx, "contact submission failed",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ch := h.contact.IssueChallenge(len(r.UserAgent()))
	httputil.WriteJSON(w, http.StatusOK, ch)
}
