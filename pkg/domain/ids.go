// Package domain holds typed identifiers shared across modules. Typed IDs
// prevent cross-type assignment at compile time: a UserID can never be passed
// where an AuditID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "vouch/pkg/domain-errors"
)

// UserID identifies the subject of a verification flow. It may reference a
// provisional account that has not yet been durably created.
type UserID uuid.UUID

// AuditID identifies one audit trail entry.
type AuditID uuid.UUID

// NewAuditID returns a fresh random audit identifier.
func NewAuditID() AuditID { return AuditID(uuid.New()) }

// ParseUserID validates and parses a user identifier from untrusted input.
// Empty strings, malformed values, and the nil UUID are all rejected; this is
// a trust-boundary check applied at every API entry point.
func ParseUserID(raw string) (UserID, error) {
	if raw == "" {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id is not a valid uuid")
	}
	if parsed == uuid.Nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id must not be the nil uuid")
	}
	return UserID(parsed), nil
}

func (u UserID) String() string { return uuid.UUID(u).String() }

// IsNil reports whether the ID is unset.
func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

func (a AuditID) String() string { return uuid.UUID(a).String() }
