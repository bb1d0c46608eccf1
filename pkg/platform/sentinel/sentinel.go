package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors without string
// matching.
//
// They describe factual states of a resource, not validation failures:
// - ErrNotFound: entity does not exist in the store
// - ErrExpired: session/token has passed its expiry
// - ErrAlreadyUsed: one-shot resource already consumed
// - ErrInvalidState: entity in the wrong state for the requested transition
// - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
