package testutil

import (
	"net/http"
	"time"

	"folio/pkg/requestcontext"
)

// WithClient sets the remote address and User-Agent the way a direct
// connection would, so the metadata middleware and key derivation see them.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	req.RemoteAddr = ip + ":40000"
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
