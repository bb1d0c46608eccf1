// Package session persists the short-lived correlation state issued on
// /auth/start.
//
// Error contract: all implementations return sentinel.ErrNotFound for absent
// states, sentinel.ErrExpired / sentinel.ErrAlreadyUsed from Consume (with
// the record, for replay diagnostics), and wrapped errors for infrastructure
// failures.
package session

import (
	"context"
	"time"

	"vouch/internal/verification"
)

// Store holds pending verification sessions keyed by state token.
type Store interface {
	// Create inserts a pending session. Any prior pending session for the
	// same (user, provider) pair is superseded: it is marked expired and its
	// state token stops resolving to a pending session.
	Create(ctx context.Context, s *verification.Session) error

	// Find returns the session for a state token.
	Find(ctx context.Context, state string) (*verification.Session, error)

	// Consume atomically transitions a pending session to completed (success
	// true) or failed (success false). When two callbacks race on one state,
	// exactly one caller wins; the loser receives the record together with
	// sentinel.ErrAlreadyUsed. A session past its expiry is marked expired
	// and returned with sentinel.ErrExpired.
	Consume(ctx context.Context, state string, now time.Time, success bool) (*verification.Session, error)

	// DeleteExpired removes sessions whose expiry (plus retention grace) has
	// passed, regardless of terminal state. The time is injected so the GC
	// loop and tests share one clock.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// retentionGrace keeps terminal sessions around briefly after expiry so a
// late replay observes "already used" rather than "not found" in logs.
const retentionGrace = time.Hour
