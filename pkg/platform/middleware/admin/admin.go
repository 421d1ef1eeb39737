package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"folio/pkg/platform/httputil"
	request "folio/pkg/platform/middleware/request"
	"folio/pkg/platform/privacy"
	folioStrings "folio/pkg/platform/strings"
	"folio/pkg/requestcontext"

	dErrors "folio/pkg/domain-errors"
)

// EmailVerifier validates a bearer token and returns the verified email claim.
type EmailVerifier interface {
	VerifiedEmail(token string) (string, error)
}

// RequireAdmin admits requests whose bearer token verifies to an email in the
// allowlist. Missing or invalid tokens get 401; verified non-admins get 403.
func RequireAdmin(verifier EmailVerifier, allowlist []string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, email := range folioStrings.DedupeAndTrimLower(allowlist) {
		allowed[email] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "admin access - missing token", "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			email, err := verifier.VerifiedEmail(token)
			if err != nil {
				logger.WarnContext(ctx, "admin access - invalid token", "error", err, "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			if _, ok := allowed[email]; !ok {
				logger.WarnContext(ctx, "admin access - not allowlisted",
					"email", privacy.MaskEmail(email),
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Forbidden"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminEmail(ctx, email)))
		})
	}
}
