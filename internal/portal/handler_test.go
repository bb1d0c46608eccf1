package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vouch/internal/audit"
	auditmem "vouch/internal/audit/store/memory"
	"vouch/internal/portal/apikey"
	"vouch/internal/tiergate"
	"vouch/internal/verification"
	statusstore "vouch/internal/verification/store/status"
	id "vouch/pkg/domain"
)

type fixture struct {
	router   chi.Router
	statuses *statusstore.InMemoryStore
	auditor  *audit.Publisher
	key      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	statuses := statusstore.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := tiergate.New(statuses, tiergate.NewInMemoryConsumptionStore(), logger)

	key, err := apikey.Generate()
	if err != nil {
		t.Fatalf("failed to generate api key: %v", err)
	}
	hash, err := apikey.Hash(key)
	if err != nil {
		t.Fatalf("failed to hash api key: %v", err)
	}

	auditor := audit.NewPublisher(auditmem.NewInMemoryStore())
	t.Cleanup(auditor.Close)

	router := chi.NewRouter()
	New(gate, apikey.NewKeyring([]string{hash}), auditor, logger).Register(router)

	return &fixture{router: router, statuses: statuses, auditor: auditor, key: key}
}

func (f *fixture) setTier(t *testing.T, userID id.UserID, tier verification.Tier) {
	t.Helper()
	if err := f.statuses.Upsert(context.Background(), &verification.StatusRecord{
		UserID:    userID,
		Tier:      tier,
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("failed to seed tier: %v", err)
	}
}

func (f *fixture) submit(t *testing.T, payload map[string]any) (*httptest.ResponseRecorder, submitResponse) {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/portal/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp submitResponse
	if rec.Body.Len() > 0 {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rec, resp
}

func TestSubmit_AnonymousDenied(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())

	rec, resp := f.submit(t, map[string]any{
		"user_id": userID.String(),
		"name":    "Ada",
		"role":    "researcher",
		"problem": "heap overflow in parser",
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if resp.Accepted {
		t.Fatal("anonymous submission must be denied")
	}
	if resp.Reason != tiergate.ReasonVerificationRequired {
		t.Fatalf("unexpected reason: %s", resp.Reason)
	}
}

func TestSubmit_VerifiedAccepted(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.setTier(t, userID, verification.TierVerified)

	rec, resp := f.submit(t, map[string]any{
		"user_id": userID.String(),
		"name":    "Ada",
		"role":    "researcher",
		"problem": "heap overflow in parser",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Accepted || resp.Priority != string(tiergate.PriorityNormal) {
		t.Fatalf("expected normal-priority acceptance, got %+v", resp)
	}
}

func TestSubmit_NonVerifiedOneLifetimeSubmission(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.setTier(t, userID, verification.TierNonVerified)

	payload := map[string]any{
		"user_id": userID.String(),
		"name":    "Ada",
		"role":    "researcher",
		"problem": "heap overflow in parser",
	}

	rec, resp := f.submit(t, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Accepted || resp.Priority != string(tiergate.PriorityLow) {
		t.Fatalf("expected low-priority acceptance, got %+v", resp)
	}

	rec, resp = f.submit(t, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on second attempt, got %d", rec.Code)
	}
	if resp.Reason != tiergate.ReasonQuotaExhausted {
		t.Fatalf("unexpected reason: %s", resp.Reason)
	}
}

func TestSubmit_APIKeyBypassesGate(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())

	rec, resp := f.submit(t, map[string]any{
		"user_id": userID.String(),
		"name":    "Scanner",
		"role":    "integration",
		"problem": "automated finding",
		"api_key": f.key,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Accepted || resp.Priority != string(tiergate.PriorityNormal) {
		t.Fatalf("expected api-key acceptance, got %+v", resp)
	}
}

func TestSubmit_InvalidAPIKeyFallsThroughToGate(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())

	rec, _ := f.submit(t, map[string]any{
		"user_id": userID.String(),
		"name":    "Scanner",
		"role":    "integration",
		"problem": "automated finding",
		"api_key": "wrong",
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous user with bad key, got %d", rec.Code)
	}
}

func TestSubmit_MissingProblem(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.submit(t, map[string]any{
		"user_id": uuid.NewString(),
		"name":    "Ada",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestValidateAPIKey(t *testing.T) {
	f := newFixture(t)

	check := func(key string) bool {
		body, _ := json.Marshal(map[string]string{"api_key": key})
		req := httptest.NewRequest(http.MethodPost, "/portal/validate-api-key", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp validateKeyResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return resp.Valid
	}

	if !check(f.key) {
		t.Fatal("configured key must validate")
	}
	if check("unknown") {
		t.Fatal("unknown key must not validate")
	}
}
