// Package status persists the durable per-user trust record. Records are
// created implicitly on a user's first verification interaction and are never
// deleted by this subsystem; retention and erasure are external policy.
package status

import (
	"context"

	"vouch/internal/verification"
	id "vouch/pkg/domain"
)

// Store holds UserVerificationStatus records keyed by user.
type Store interface {
	// Get returns the record for a user, or sentinel.ErrNotFound when the
	// user has never interacted with verification.
	Get(ctx context.Context, userID id.UserID) (*verification.StatusRecord, error)

	// Upsert creates or replaces the record. Only the orchestrator calls
	// this, always with a record produced by StatusRecord.Apply so the tier
	// monotonicity rule holds regardless of backend.
	Upsert(ctx context.Context, record *verification.StatusRecord) error
}
