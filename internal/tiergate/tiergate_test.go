package tiergate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vouch/internal/verification"
	statusstore "vouch/internal/verification/store/status"
	id "vouch/pkg/domain"
)

type GateSuite struct {
	suite.Suite
	gate     *Gate
	statuses *statusstore.InMemoryStore
	ctx      context.Context
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.statuses = statusstore.NewInMemoryStore()
	s.gate = New(s.statuses, NewInMemoryConsumptionStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.ctx = context.Background()
}

func (s *GateSuite) setTier(userID id.UserID, tier verification.Tier) {
	s.Require().NoError(s.statuses.Upsert(s.ctx, &verification.StatusRecord{
		UserID:    userID,
		Tier:      tier,
		UpdatedAt: time.Now(),
	}))
}

func (s *GateSuite) TestUnknownUserIsAnonymous() {
	tier, err := s.gate.Tier(s.ctx, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Equal(verification.TierAnonymous, tier)
}

func (s *GateSuite) TestAnonymousDenied() {
	decision, err := s.gate.CheckSubmission(s.ctx, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(ReasonVerificationRequired, decision.Reason)
}

func (s *GateSuite) TestVerifiedAllowedNormalPriority() {
	userID := id.UserID(uuid.New())
	s.setTier(userID, verification.TierVerified)

	decision, err := s.gate.CheckSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(PriorityNormal, decision.Priority)

	// Verified users are never quota-limited.
	again, err := s.gate.CheckSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.True(again.Allowed)
}

func (s *GateSuite) TestNonVerifiedGetsOneLowPrioritySubmission() {
	userID := id.UserID(uuid.New())
	s.setTier(userID, verification.TierNonVerified)

	first, err := s.gate.CheckSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.True(first.Allowed)
	s.Equal(PriorityLow, first.Priority)

	second, err := s.gate.CheckSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.False(second.Allowed)
	s.Equal(ReasonQuotaExhausted, second.Reason)
}

func (s *GateSuite) TestQuotaSurvivesUpgrade() {
	userID := id.UserID(uuid.New())
	s.setTier(userID, verification.TierNonVerified)

	_, err := s.gate.CheckSubmission(s.ctx, userID)
	s.Require().NoError(err)

	// Upgrading to verified lifts the cap entirely.
	s.setTier(userID, verification.TierVerified)
	decision, err := s.gate.CheckSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(PriorityNormal, decision.Priority)
}

func (s *GateSuite) TestConcurrentAttemptsClaimOnce() {
	userID := id.UserID(uuid.New())
	s.setTier(userID, verification.TierNonVerified)

	const attempts = 16
	var wg sync.WaitGroup
	allowed := make(chan bool, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := s.gate.CheckSubmission(s.ctx, userID)
			s.NoError(err)
			allowed <- decision.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	wins := 0
	for ok := range allowed {
		if ok {
			wins++
		}
	}
	s.Equal(1, wins, "exactly one concurrent attempt may claim the allowance")
}
