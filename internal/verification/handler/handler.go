package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"vouch/internal/verification"
	"vouch/internal/verification/service"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/requestcontext"
)

// TierCookieName carries the signed tier claim to the portal frontend. Set
// only here; presentation layers treat it read-only.
const TierCookieName = "vouch_tier"

// Service defines the interface for verification operations.
type Service interface {
	Start(ctx context.Context, userID id.UserID) (string, error)
	Complete(ctx context.Context, query url.Values) (service.Outcome, error)
	UserStatus(ctx context.Context, userID id.UserID) (*verification.StatusRecord, error)
}

// Handler wires the verification endpoints to the orchestrator.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a verification handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auth/start", h.HandleStart)
	r.Get("/auth/callback", h.HandleCallback)
	r.Get("/user/{userID}/status", h.HandleUserStatus)
}

// HandleStart handles GET /auth/start?user_id=… requests.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_id must be a valid UUID"))
		return
	}

	redirectURL, err := h.service.Start(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification start failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleCallback handles GET /auth/callback requests from providers. The
// response is always a redirect to the portal result page; a tier cookie is
// attached when the callback actually consumed a session.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	outcome, err := h.service.Complete(ctx, r.URL.Query())
	if err != nil {
		h.logger.ErrorContext(ctx, "verification callback failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if outcome.TierToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     TierCookieName,
			Value:    outcome.TierToken,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
}

type statusResponse struct {
	UserID         string     `json:"user_id"`
	Tier           string     `json:"tier"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// HandleUserStatus handles GET /user/{userID}/status requests.
func (h *Handler) HandleUserStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user id must be a valid UUID"))
		return
	}

	record, err := h.service.UserStatus(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		UserID:         record.UserID.String(),
		Tier:           string(record.Tier),
		LastVerifiedAt: record.VerifiedAt,
	})
}
