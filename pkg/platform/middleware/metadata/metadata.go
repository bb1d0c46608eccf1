// Package metadata extracts per-request client metadata (correlation ID,
// client IP, User-Agent) and stores it in the context for handlers, services,
// and the audit trail.
package metadata

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"vouch/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// Middleware assigns a request ID (honoring an inbound X-Request-ID from the
// relay so both hops share one correlation ID), captures client IP and
// User-Agent, and echoes the request ID back on the response. Apply early in
// the chain.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithClientMetadata(ctx, clientIPFromRequest(r), r.Header.Get("User-Agent"))

		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIPFromRequest extracts the real client IP, handling proxies.
func clientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For may list client, proxy1, proxy2, ...; the first entry
	// is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" ("[::1]:port" for IPv6).
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
