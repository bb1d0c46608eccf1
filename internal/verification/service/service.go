// Package service implements the verification orchestrator: it issues state
// tokens, delegates to the active provider, and folds callback verdicts into
// durable trust records. It is the only writer of user tiers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vouch/internal/audit"
	"vouch/internal/tierclaim"
	"vouch/internal/verification"
	"vouch/internal/verification/metrics"
	"vouch/internal/verification/provider"
	"vouch/internal/verification/store/session"
	"vouch/internal/verification/store/status"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/sentinel"
	"vouch/pkg/requestcontext"
)

const tracerName = "vouch/internal/verification/service"

// Outcome is the result of processing a callback. RedirectURL is always set;
// TierToken is present only when a session was actually consumed for a known
// user.
type Outcome struct {
	RedirectURL string
	Tier        verification.Tier
	TierToken   string
}

// Config carries the orchestrator's own settings. Provider credentials live
// with their providers.
type Config struct {
	// ActiveProvider selects which registered provider handles new starts.
	ActiveProvider string

	// SessionTTL bounds how long a pending session may wait for its
	// callback.
	SessionTTL time.Duration

	// WebOrigin is the externally reachable origin of the portal frontend,
	// used to build the final user-facing redirect.
	WebOrigin string
}

// Service orchestrates the two-phase verification handshake.
type Service struct {
	cfg       Config
	providers *provider.Registry
	sessions  session.Store
	statuses  status.Store
	claims    *tierclaim.Service
	auditor   *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New(
	cfg Config,
	providers *provider.Registry,
	sessions session.Store,
	statuses status.Store,
	claims *tierclaim.Service,
	auditor *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		providers: providers,
		sessions:  sessions,
		statuses:  statuses,
		claims:    claims,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Start begins a verification handshake for the user and returns the
// absolute URL the browser must be redirected to. Any prior pending session
// for the same user and provider is superseded.
func (s *Service) Start(ctx context.Context, userID id.UserID) (string, error) {
	ctx, span := s.tracer.Start(ctx, "verification.start",
		trace.WithAttributes(attribute.String("provider", s.cfg.ActiveProvider)))
	defer span.End()

	p, err := s.providers.Get(s.cfg.ActiveProvider)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "active verification provider not configured", err)
	}

	state, err := verification.NewState()
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to generate state token", err)
	}

	now := requestcontext.Now(ctx)
	sess := &verification.Session{
		State:     state,
		UserID:    userID,
		Provider:  p.Name(),
		Status:    verification.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", dErrors.Wrap(dErrors.CodeUnavailable, "failed to create verification session", err)
	}

	redirectURL, err := p.StartURL(userID.String(), state)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "provider failed to build start URL", err)
	}
	if err := requireAbsolute(redirectURL); err != nil {
		// A relative redirect here would strand the browser on our own
		// origin mid-handshake.
		s.logger.Error("provider returned non-absolute start URL",
			"provider", p.Name(), "url", redirectURL)
		return "", dErrors.Wrap(dErrors.CodeInternal, "provider start URL is not absolute", err)
	}

	s.metrics.IncrementStart(p.Name())
	s.emitAudit(ctx, audit.Event{
		UserID:   userID,
		Provider: p.Name(),
		Action:   string(audit.EventVerificationStarted),
	})
	s.logger.Info("verification started",
		"user_id", userID.String(),
		"provider", p.Name(),
		"request_id", requestcontext.RequestID(ctx))

	return redirectURL, nil
}

// Complete processes a provider callback. Protocol failures (missing,
// unknown, expired, or replayed state) fail closed into a failure redirect
// with no tier change; only infrastructure failures surface as errors.
func (s *Service) Complete(ctx context.Context, query url.Values) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "verification.complete")
	defer span.End()

	started := time.Now()
	defer func() { s.metrics.ObserveCallbackLatency(time.Since(started)) }()

	now := requestcontext.Now(ctx)

	state := query.Get("state")
	if state == "" {
		return s.failClosed(ctx, nil, "unknown", verification.ReasonMissingState, "missing_state"), nil
	}

	sess, err := s.sessions.Find(ctx, state)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.failClosed(ctx, nil, "unknown", verification.ReasonUnknownState, "unknown_state"), nil
		}
		return Outcome{}, dErrors.Wrap(dErrors.CodeUnavailable, "failed to look up verification session", err)
	}

	p, err := s.providers.Get(sess.Provider)
	if err != nil {
		return s.failClosed(ctx, sess, sess.Provider, verification.ReasonProviderFailed, "provider_unavailable"), nil
	}

	result := p.HandleCallback(query)

	consumed, err := s.sessions.Consume(ctx, state, now, result.Success)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			// Race loser or replay: the winner already applied the tier
			// change. No-op beyond the redirect.
			return s.failClosed(ctx, sess, sess.Provider, verification.ReasonSessionReplayed, "replayed"), nil
		case errors.Is(err, sentinel.ErrExpired):
			return s.failClosed(ctx, sess, sess.Provider, verification.ReasonSessionExpired, "expired"), nil
		case errors.Is(err, sentinel.ErrNotFound):
			return s.failClosed(ctx, nil, sess.Provider, verification.ReasonUnknownState, "unknown_state"), nil
		default:
			return Outcome{}, dErrors.Wrap(dErrors.CodeUnavailable, "failed to consume verification session", err)
		}
	}

	record, err := s.statuses.Get(ctx, consumed.UserID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return Outcome{}, dErrors.Wrap(dErrors.CodeUnavailable, "failed to load verification status", err)
		}
		record = verification.NewStatusRecord(consumed.UserID)
	}
	record.Apply(result, now)
	if err := s.statuses.Upsert(ctx, record); err != nil {
		return Outcome{}, dErrors.Wrap(dErrors.CodeUnavailable, "failed to persist verification status", err)
	}

	token, err := s.claims.Issue(consumed.UserID, record.Tier, now)
	if err != nil {
		return Outcome{}, dErrors.Wrap(dErrors.CodeInternal, "failed to mint tier claim", err)
	}

	outcome := "completed"
	action := audit.EventVerificationCompleted
	if !result.Success {
		outcome = "failed"
		action = audit.EventVerificationFailed
	}
	s.metrics.IncrementCallback(consumed.Provider, outcome)
	s.emitAudit(ctx, audit.Event{
		UserID:   consumed.UserID,
		Provider: consumed.Provider,
		Action:   string(action),
		Decision: string(record.Tier),
		Reason:   firstReason(result.Reasons),
	})
	s.logger.Info("verification callback processed",
		"user_id", consumed.UserID.String(),
		"provider", consumed.Provider,
		"outcome", outcome,
		"tier", string(record.Tier),
		"request_id", requestcontext.RequestID(ctx))

	return Outcome{
		RedirectURL: s.resultURL(record.Tier),
		Tier:        record.Tier,
		TierToken:   token,
	}, nil
}

// UserStatus returns the durable trust record for a user. Users without a
// record are reported at the anonymous tier.
func (s *Service) UserStatus(ctx context.Context, userID id.UserID) (*verification.StatusRecord, error) {
	record, err := s.statuses.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "no verification record for user", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "failed to load verification status", err)
	}
	return record, nil
}

// failClosed produces the failure redirect for a callback that must not
// change any tier. The current tier is read for the redirect when the
// session identified a user; otherwise non_verified is reported.
func (s *Service) failClosed(ctx context.Context, sess *verification.Session, providerName, reason, outcome string) Outcome {
	tier := verification.TierNonVerified

	var userID id.UserID
	if sess != nil {
		userID = sess.UserID
		if record, err := s.statuses.Get(ctx, sess.UserID); err == nil {
			tier = record.Tier
		}
	}

	s.metrics.IncrementCallback(providerName, outcome)
	s.emitAudit(ctx, audit.Event{
		UserID:   userID,
		Provider: providerName,
		Action:   string(audit.EventCallbackRejected),
		Reason:   reason,
	})
	s.logger.Warn("verification callback rejected",
		"provider", providerName,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx))

	return Outcome{RedirectURL: s.resultURL(tier), Tier: tier}
}

func (s *Service) resultURL(tier verification.Tier) string {
	return fmt.Sprintf("%s/auth/result?status=%s", s.cfg.WebOrigin, url.QueryEscape(string(tier)))
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.IP = requestcontext.ClientIP(ctx)
	event.Device = audit.DeviceDisplay(requestcontext.UserAgent(ctx))
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Warn("audit event dropped", "action", event.Action, "error", err)
	}
}

func requireAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url %q is not absolute", raw)
	}
	return nil
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}
