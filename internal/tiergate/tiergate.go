// Package tiergate enforces what each trust tier may do. It is evaluated
// fresh on every submission attempt; nothing here is cached client-side.
package tiergate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vouch/internal/verification"
	"vouch/internal/verification/store/status"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// Priority orders submissions in the review queue.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Denial reasons surfaced to the portal.
const (
	ReasonVerificationRequired = "verification_required"
	ReasonQuotaExhausted       = "quota_exhausted"
)

// Decision is the gate's verdict for one submission attempt.
type Decision struct {
	Allowed  bool
	Priority Priority
	Reason   string
}

// ConsumptionStore tracks the one lifetime low-priority submission a
// non-verified user is granted.
type ConsumptionStore interface {
	// TryConsume atomically claims the user's single allowance. It returns
	// true exactly once per user across all callers.
	TryConsume(ctx context.Context, userID id.UserID) (bool, error)

	// Consumed reports whether the allowance has already been claimed.
	Consumed(ctx context.Context, userID id.UserID) (bool, error)
}

// Gate computes tiers and submission decisions.
type Gate struct {
	statuses     status.Store
	consumptions ConsumptionStore
	logger       *slog.Logger
}

func New(statuses status.Store, consumptions ConsumptionStore, logger *slog.Logger) *Gate {
	return &Gate{statuses: statuses, consumptions: consumptions, logger: logger}
}

// Tier returns the user's current trust tier. Users without a verification
// record are anonymous.
func (g *Gate) Tier(ctx context.Context, userID id.UserID) (verification.Tier, error) {
	record, err := g.statuses.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return verification.TierAnonymous, nil
		}
		return "", fmt.Errorf("load tier for %s: %w", userID, err)
	}
	return record.Tier, nil
}

// CheckSubmission decides whether a submission attempt is accepted, and at
// what queue priority. Non-verified users get exactly one low-priority
// submission for their lifetime; the quota is claimed atomically so two
// racing attempts cannot both pass.
func (g *Gate) CheckSubmission(ctx context.Context, userID id.UserID) (Decision, error) {
	tier, err := g.Tier(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	switch tier {
	case verification.TierVerified:
		return Decision{Allowed: true, Priority: PriorityNormal}, nil

	case verification.TierNonVerified:
		claimed, err := g.consumptions.TryConsume(ctx, userID)
		if err != nil {
			return Decision{}, fmt.Errorf("claim submission allowance for %s: %w", userID, err)
		}
		if !claimed {
			return Decision{Allowed: false, Reason: ReasonQuotaExhausted}, nil
		}
		g.logger.Info("lifetime submission allowance consumed", "user_id", userID.String())
		return Decision{Allowed: true, Priority: PriorityLow}, nil

	default:
		return Decision{Allowed: false, Reason: ReasonVerificationRequired}, nil
	}
}
