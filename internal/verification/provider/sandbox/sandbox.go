// Package sandbox implements a self-contained verification backend for
// development and tests. Instead of sending the browser to an external
// verifier, the start URL points straight back at the callback with the
// outcome baked into the query, so the relay, orchestrator, and tier gate can
// be exercised end to end without an external dependency.
package sandbox

import (
	"net/url"
	"strings"

	"vouch/internal/verification"
)

const (
	providerName = "sandbox"

	// fallbackCallbackURL keeps start URLs absolute even when configuration
	// is missing; a relative redirect would strand the browser.
	fallbackCallbackURL = "http://localhost:7070/auth/callback"

	// AttestationRef is the constant sentinel recorded for sandbox checks.
	AttestationRef = "mock_verification"

	// ReasonMockFlow marks results that came from the sandbox backend.
	ReasonMockFlow = "MOCK_FLOW"
)

type Provider struct {
	callbackURL string
}

// New builds a sandbox provider. An empty or schemeless callback URL is a
// configuration error normalized here to a safe absolute default.
func New(callbackURL string) *Provider {
	return &Provider{callbackURL: normalizeCallbackURL(callbackURL)}
}

func (p *Provider) Name() string { return providerName }

// StartURL returns the self-referential callback URL carrying ok=1, the user
// ID, and the state token.
func (p *Provider) StartURL(userID string, state string) (string, error) {
	q := url.Values{}
	q.Set("mock", "1")
	q.Set("ok", "1")
	q.Set("user_id", userID)
	q.Set("state", state)
	return p.callbackURL + "?" + q.Encode(), nil
}

// HandleCallback treats ok=1 as the sole success indicator. Anything else,
// including a missing parameter, is a failed check.
func (p *Provider) HandleCallback(query url.Values) verification.Result {
	success := query.Get("ok") == "1"

	scoreBin := verification.ScoreBinLow
	if success {
		scoreBin = verification.ScoreBinHigh
	}

	return verification.Result{
		Success:        success,
		AttestationRef: AttestationRef,
		Reasons:        []string{ReasonMockFlow},
		ScoreBin:       scoreBin,
	}
}

func normalizeCallbackURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallbackCallbackURL
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if trimmed == "" {
		return fallbackCallbackURL
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "http://") && !strings.HasPrefix(strings.ToLower(trimmed), "https://") {
		return "http://" + trimmed
	}
	return trimmed
}
