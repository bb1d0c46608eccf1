// Package verification holds the domain model of the identity-verification
// flow: short-lived correlation sessions, provider verdicts, and the durable
// per-user trust record derived from them.
package verification

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// Tier is the platform's internal trust level, derived from verification
// outcomes and used to gate features everywhere else in the system.
type Tier string

const (
	TierAnonymous   Tier = "anonymous"
	TierNonVerified Tier = "non_verified"
	TierVerified    Tier = "verified"
)

// rank orders tiers for the monotonicity rule. Higher never moves lower
// through this subsystem.
func (t Tier) rank() int {
	switch t {
	case TierVerified:
		return 2
	case TierNonVerified:
		return 1
	default:
		return 0
	}
}

// SessionStatus tracks a correlation session's lifecycle:
// pending -> completed | failed | expired.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionExpired
}

// Reason codes recorded on verification outcomes. Provider-specific codes
// live with their provider; these cover the orchestrator's own decisions.
const (
	ReasonMissingState    = "MISSING_STATE"
	ReasonUnknownState    = "UNKNOWN_STATE"
	ReasonSessionExpired  = "SESSION_EXPIRED"
	ReasonSessionReplayed = "SESSION_REPLAYED"
	ReasonProviderFailed  = "PROVIDER_FAILED"
)

// Score bins reported by providers. Coarse categorical buckets; callers must
// not assume finer granularity.
const (
	ScoreBinHigh = "0.8-0.9"
	ScoreBinLow  = "0.0-0.2"
)

// Session is the short-lived correlation state issued on /auth/start and
// consumed on /auth/callback. The state token binds the external hop back to
// its originating request.
type Session struct {
	State     string
	UserID    id.UserID
	Provider  string
	Status    SessionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session's replay window has closed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ValidateForConsume checks that the session may transition to a terminal
// state at time now. Expired and already-terminal sessions are rejected so a
// late or replayed callback can never double-apply a tier change.
func (s *Session) ValidateForConsume(now time.Time) error {
	if s.Status.Terminal() {
		return fmt.Errorf("session %q is %s: %w", s.State, s.Status, sentinel.ErrAlreadyUsed)
	}
	if s.Expired(now) {
		return fmt.Errorf("session %q expired at %s: %w", s.State, s.ExpiresAt.Format(time.RFC3339), sentinel.ErrExpired)
	}
	return nil
}

// MarkCompleted transitions the session to its success terminal state.
func (s *Session) MarkCompleted() { s.Status = SessionCompleted }

// MarkFailed transitions the session to its failure terminal state.
func (s *Session) MarkFailed() { s.Status = SessionFailed }

// MarkExpired records TTL-based expiry as the terminal state.
func (s *Session) MarkExpired() { s.Status = SessionExpired }

// Result is a provider's verdict for one callback. It is interpreted by the
// orchestrator and folded into the durable StatusRecord; it is never
// persisted verbatim.
type Result struct {
	Success bool

	// AttestationRef points at the provider's record of the check. Kept for
	// audit, not re-verification.
	AttestationRef string

	// Reasons are ordered machine-readable codes explaining the outcome.
	Reasons []string

	// ScoreBin is the provider's coarse confidence bucket.
	ScoreBin string
}

// Failure builds a failed result with the given reason codes.
func Failure(reasons ...string) Result {
	return Result{Success: false, Reasons: reasons, ScoreBin: ScoreBinLow}
}

// StatusRecord is the durable trust decision for one user. Mutated only by
// the orchestrator on callback completion; never deleted by this subsystem.
type StatusRecord struct {
	UserID         id.UserID
	Tier           Tier
	AttestationRef string
	VerifiedAt     *time.Time
	LastReasons    []string
	ScoreBin       string
	UpdatedAt      time.Time
}

// NewStatusRecord creates the implicit record for a user's first recorded
// verification interaction.
func NewStatusRecord(userID id.UserID) *StatusRecord {
	return &StatusRecord{UserID: userID, Tier: TierAnonymous}
}

// Apply folds a provider result into the record. Tier moves are monotonic:
// success with an attestation reference upgrades to verified; failure lifts
// anonymous to non_verified (the user has now interacted with verification)
// but never downgrades an already-verified user.
func (r *StatusRecord) Apply(result Result, now time.Time) {
	r.LastReasons = result.Reasons
	r.ScoreBin = result.ScoreBin
	r.UpdatedAt = now

	if result.Success && result.AttestationRef != "" {
		if r.Tier.rank() < TierVerified.rank() {
			r.Tier = TierVerified
		}
		r.AttestationRef = result.AttestationRef
		verifiedAt := now
		r.VerifiedAt = &verifiedAt
		return
	}

	if r.Tier.rank() < TierNonVerified.rank() {
		r.Tier = TierNonVerified
	}
}

// stateTokenBytes gives 256 bits of entropy, above the 128-bit floor for an
// unguessable correlation token.
const stateTokenBytes = 32

// NewState returns a fresh opaque state token.
func NewState() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
