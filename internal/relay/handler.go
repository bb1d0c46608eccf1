// Package relay is the stateless edge in front of the orchestrator's
// verification endpoints. Its one job is redirect transparency: an upstream
// 3xx reaches the browser with the same status and Location, never resolved
// by the relay's own HTTP client.
package relay

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vouch/internal/relay/upstream"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/requestcontext"
)

// forwardedHeaders are the inbound headers the relay passes upstream.
var forwardedHeaders = []string{"Cookie", "User-Agent", "X-Forwarded-For", "X-Request-ID"}

// Handler relays verification traffic to the orchestrator.
type Handler struct {
	client *upstream.Client
	logger *slog.Logger
}

func New(client *upstream.Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// Register mounts the relayed endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auth/start", h.Relay)
	r.Get("/auth/callback", h.Relay)
}

// Relay forwards the request upstream and reissues the outcome to the
// browser. A 3xx is relayed byte-for-byte whether the client surfaced it as
// a response or as a StatusError; any other status passes through as-is;
// transport failure becomes a 502.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	headers := http.Header{}
	for _, name := range forwardedHeaders {
		for _, v := range r.Header.Values(name) {
			headers.Add(name, v)
		}
	}
	headers.Set("X-Request-ID", requestID)

	resp, err := h.client.Get(ctx, r.URL.Path, r.URL.Query(), headers)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			h.write(w, statusErr.Status, statusErr.Header, statusErr.Body)
			return
		}
		h.logger.ErrorContext(ctx, "upstream call failed",
			"request_id", requestID,
			"path", r.URL.Path,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "verification service unreachable", err))
		return
	}

	h.write(w, resp.Status, resp.Header, resp.Body)
}

func (h *Handler) write(w http.ResponseWriter, status int, header http.Header, body []byte) {
	if status >= 300 && status < 400 {
		if location := header.Get("Location"); location != "" {
			w.Header().Set("Location", location)
			for _, cookie := range header.Values("Set-Cookie") {
				w.Header().Add("Set-Cookie", cookie)
			}
			w.WriteHeader(status)
			return
		}
	}

	if ct := header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	for _, cookie := range header.Values("Set-Cookie") {
		w.Header().Add("Set-Cookie", cookie)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
