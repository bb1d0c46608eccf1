package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vouch/internal/audit"
	auditmem "vouch/internal/audit/store/memory"
	"vouch/internal/tierclaim"
	"vouch/internal/verification"
	"vouch/internal/verification/provider"
	"vouch/internal/verification/provider/sandbox"
	sessionstore "vouch/internal/verification/store/session"
	statusstore "vouch/internal/verification/store/status"
	id "vouch/pkg/domain"
	"vouch/pkg/requestcontext"
)

const testWebOrigin = "http://localhost:5173"

type ServiceSuite struct {
	suite.Suite
	svc        *Service
	sessions   *sessionstore.InMemoryStore
	statuses   *statusstore.InMemoryStore
	auditStore *auditmem.InMemoryStore
	auditor    *audit.Publisher
	claims     *tierclaim.Service
	userID     id.UserID
	now        time.Time
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.sessions = sessionstore.NewInMemoryStore()
	s.statuses = statusstore.NewInMemoryStore()
	s.auditStore = auditmem.NewInMemoryStore()
	s.auditor = audit.NewPublisher(s.auditStore)
	s.claims = tierclaim.NewService("test-signing-key", time.Hour)

	registry := provider.NewRegistry(sandbox.New("http://localhost:7070/auth/callback"))

	s.svc = New(
		Config{
			ActiveProvider: "sandbox",
			SessionTTL:     15 * time.Minute,
			WebOrigin:      testWebOrigin,
		},
		registry,
		s.sessions,
		s.statuses,
		s.claims,
		s.auditor,
		nil,
		slog.New(slog.NewTextHandler(testWriter{s.T()}, nil)),
	)

	s.userID = id.UserID(uuid.New())
	s.now = time.Now().UTC()
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.auditor.Close()
}

// startAndExtractState runs Start and pulls the state token out of the
// sandbox callback URL it produces.
func (s *ServiceSuite) startAndExtractState() string {
	redirectURL, err := s.svc.Start(s.ctx, s.userID)
	s.Require().NoError(err)

	parsed, err := url.Parse(redirectURL)
	s.Require().NoError(err)
	state := parsed.Query().Get("state")
	s.Require().NotEmpty(state)
	return state
}

func (s *ServiceSuite) TestStartReturnsAbsoluteCallbackURL() {
	redirectURL, err := s.svc.Start(s.ctx, s.userID)
	s.Require().NoError(err)

	parsed, err := url.Parse(redirectURL)
	s.Require().NoError(err)
	s.True(parsed.IsAbs())
	s.Equal("1", parsed.Query().Get("mock"))
	s.Equal("1", parsed.Query().Get("ok"))
	s.Equal(s.userID.String(), parsed.Query().Get("user_id"))
}

func (s *ServiceSuite) TestSuccessfulCallbackUpgradesToVerified() {
	state := s.startAndExtractState()

	outcome, err := s.svc.Complete(s.ctx, url.Values{
		"state":   {state},
		"ok":      {"1"},
		"user_id": {s.userID.String()},
	})
	s.Require().NoError(err)

	s.Equal(verification.TierVerified, outcome.Tier)
	s.Equal(testWebOrigin+"/auth/result?status=verified", outcome.RedirectURL)
	s.NotEmpty(outcome.TierToken)

	gotUser, gotTier, err := s.claims.Parse(outcome.TierToken)
	s.Require().NoError(err)
	s.Equal(s.userID, gotUser)
	s.Equal(verification.TierVerified, gotTier)

	record, err := s.svc.UserStatus(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(verification.TierVerified, record.Tier)
	s.Equal("mock_verification", record.AttestationRef)
}

func (s *ServiceSuite) TestFailedCallbackDoesNotVerify() {
	state := s.startAndExtractState()

	outcome, err := s.svc.Complete(s.ctx, url.Values{
		"state": {state},
		"ok":    {"0"},
	})
	s.Require().NoError(err)

	s.Equal(verification.TierNonVerified, outcome.Tier)
	s.True(strings.HasSuffix(outcome.RedirectURL, "status=non_verified"))

	record, err := s.svc.UserStatus(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(verification.TierNonVerified, record.Tier)
	s.Empty(record.AttestationRef)
}

func (s *ServiceSuite) TestExpiredSessionFailsClosed() {
	state := s.startAndExtractState()

	late := requestcontext.WithTime(context.Background(), s.now.Add(16*time.Minute))
	outcome, err := s.svc.Complete(late, url.Values{
		"state": {state},
		"ok":    {"1"},
	})
	s.Require().NoError(err)

	s.Equal(verification.TierNonVerified, outcome.Tier)
	s.Empty(outcome.TierToken)

	// No status record is written on a fail-closed callback.
	_, err = s.svc.UserStatus(s.ctx, s.userID)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestUnknownStateFailsClosed() {
	outcome, err := s.svc.Complete(s.ctx, url.Values{
		"state": {"never-issued"},
		"ok":    {"1"},
	})
	s.Require().NoError(err)

	s.Equal(verification.TierNonVerified, outcome.Tier)
	s.Empty(outcome.TierToken)
	_, err = s.svc.UserStatus(s.ctx, s.userID)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestMissingStateFailsClosed() {
	outcome, err := s.svc.Complete(s.ctx, url.Values{"ok": {"1"}})
	s.Require().NoError(err)

	s.Equal(verification.TierNonVerified, outcome.Tier)
	s.Empty(outcome.TierToken)
}

func (s *ServiceSuite) TestReplayedCallbackIsNoOp() {
	state := s.startAndExtractState()

	first, err := s.svc.Complete(s.ctx, url.Values{
		"state":   {state},
		"ok":      {"1"},
		"user_id": {s.userID.String()},
	})
	s.Require().NoError(err)
	s.Equal(verification.TierVerified, first.Tier)

	// Replay with a failing verdict must not touch the record.
	second, err := s.svc.Complete(s.ctx, url.Values{
		"state": {state},
		"ok":    {"0"},
	})
	s.Require().NoError(err)
	s.Equal(verification.TierVerified, second.Tier)
	s.Empty(second.TierToken)

	record, err := s.svc.UserStatus(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(verification.TierVerified, record.Tier)
}

func (s *ServiceSuite) TestSupersededStateFailsClosed() {
	firstState := s.startAndExtractState()
	secondState := s.startAndExtractState()
	s.NotEqual(firstState, secondState)

	outcome, err := s.svc.Complete(s.ctx, url.Values{
		"state": {firstState},
		"ok":    {"1"},
	})
	s.Require().NoError(err)
	s.Empty(outcome.TierToken)

	_, err = s.svc.UserStatus(s.ctx, s.userID)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestFailureThenSuccessEndsVerified() {
	state := s.startAndExtractState()
	_, err := s.svc.Complete(s.ctx, url.Values{"state": {state}, "ok": {"0"}})
	s.Require().NoError(err)

	state = s.startAndExtractState()
	outcome, err := s.svc.Complete(s.ctx, url.Values{
		"state":   {state},
		"ok":      {"1"},
		"user_id": {s.userID.String()},
	})
	s.Require().NoError(err)
	s.Equal(verification.TierVerified, outcome.Tier)
}

func (s *ServiceSuite) TestUnknownActiveProviderFailsStart() {
	s.svc.cfg.ActiveProvider = "nonexistent"
	_, err := s.svc.Start(s.ctx, s.userID)
	s.Require().Error(err)
}

// testWriter routes slog output through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}
