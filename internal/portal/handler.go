// Package portal exposes the submission endpoints gated by verification
// tier.
package portal

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vouch/internal/audit"
	"vouch/internal/portal/apikey"
	"vouch/internal/tiergate"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/requestcontext"
)

// Handler wires the portal submission endpoints to the tier gate.
type Handler struct {
	gate    *tiergate.Gate
	keyring *apikey.Keyring
	auditor *audit.Publisher
	logger  *slog.Logger
}

func New(gate *tiergate.Gate, keyring *apikey.Keyring, auditor *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, keyring: keyring, auditor: auditor, logger: logger}
}

// Register mounts portal endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/portal/submit", h.HandleSubmit)
	r.Post("/portal/validate-api-key", h.HandleValidateAPIKey)
}

type submitRequest struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Problem string `json:"problem"`
	APIKey  string `json:"api_key,omitempty"`
}

type submitResponse struct {
	Accepted bool   `json:"accepted"`
	Priority string `json:"priority,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// HandleSubmit handles POST /portal/submit requests. The tier gate is
// evaluated fresh on every attempt; a valid API key bypasses it for trusted
// integrations.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := httputil.Decode[submitRequest](r)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	if strings.TrimSpace(req.Problem) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "problem description is required"))
		return
	}

	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_id must be a valid UUID"))
		return
	}

	if req.APIKey != "" && h.keyring.Validate(req.APIKey) {
		h.logger.InfoContext(ctx, "submission accepted via api key",
			"request_id", requestID,
			"user_id", userID,
		)
		h.emit(r, userID, audit.EventSubmissionAccepted, string(tiergate.PriorityNormal), "api_key")
		httputil.WriteJSON(w, http.StatusOK, submitResponse{
			Accepted: true,
			Priority: string(tiergate.PriorityNormal),
		})
		return
	}

	decision, err := h.gate.CheckSubmission(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "submission gate check failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "could not evaluate submission", err))
		return
	}

	if !decision.Allowed {
		h.emit(r, userID, audit.EventSubmissionDenied, "", decision.Reason)
		httputil.WriteJSON(w, http.StatusForbidden, submitResponse{
			Accepted: false,
			Reason:   decision.Reason,
		})
		return
	}

	if decision.Priority == tiergate.PriorityLow {
		h.emit(r, userID, audit.EventQuotaConsumed, string(decision.Priority), "")
	}
	h.emit(r, userID, audit.EventSubmissionAccepted, string(decision.Priority), "")
	h.logger.InfoContext(ctx, "submission accepted",
		"request_id", requestID,
		"user_id", userID,
		"priority", string(decision.Priority),
	)

	httputil.WriteJSON(w, http.StatusOK, submitResponse{
		Accepted: true,
		Priority: string(decision.Priority),
	})
}

type validateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type validateKeyResponse struct {
	Valid bool `json:"valid"`
}

// HandleValidateAPIKey handles POST /portal/validate-api-key requests.
func (h *Handler) HandleValidateAPIKey(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[validateKeyRequest](r)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, validateKeyResponse{Valid: h.keyring.Validate(req.APIKey)})
}

func (h *Handler) emit(r *http.Request, userID id.UserID, action audit.AuditEvent, decision, reason string) {
	ctx := r.Context()
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		UserID:    userID,
		Action:    string(action),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		IP:        requestcontext.ClientIP(ctx),
		Device:    audit.DeviceDisplay(requestcontext.UserAgent(ctx)),
	}
	if err := h.auditor.Emit(ctx, event); err != nil {
		h.logger.Warn("audit event dropped", "action", event.Action, "error", err)
	}
}
