package models

import (
	"net/http"
	"strings"

	metadata "folio/pkg/platform/middleware/metadata"
)

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: an IPv6 client "2001:db8::1" becomes "2001_db8__1".
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// ClientKey identifies a caller on a route: client IP plus request path.
type ClientKey struct {
	IP   string
	Path string
}

// KeyFromRequest derives the client key: first X-Forwarded-For hop, else
// connection host, else "unknown", with the path excluding the query.
func KeyFromRequest(r *http.Request) ClientKey {
	return ClientKey{IP: metadata.ClientIPFromRequest(r), Path: r.URL.Path}
}

func (k ClientKey) String() string {
	return SanitizeKeySegment(k.IP) + ":" + SanitizeKeySegment(k.Path)
}

// BucketKey namespaces a client key under a policy.
func BucketKey(policy string, key ClientKey) string {
	return SanitizeKeySegment(policy) + ":" + key.String()
}
