// Package persona implements the hosted identity provider. The start URL
// sends the browser into the vendor's hosted flow; the callback hands back a
// one-time code and inquiry reference. The code-for-token exchange lives
// behind the exchanger seam in exchange.go so wiring in the real vendor API
// touches only that file.
package persona

import (
	"net/url"

	"vouch/internal/verification"
)

const providerName = "persona"

// ReasonSandbox marks verdicts produced by the stub exchange rather than a
// real inquiry lookup.
const ReasonSandbox = "PERSONA_SANDBOX"

// Config carries the vendor credentials and environment selection.
type Config struct {
	ClientID    string
	RedirectURI string
	Environment string
}

type Provider struct {
	cfg      Config
	exchange exchanger
}

// New builds a hosted provider using the stub exchange.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, exchange: stubExchanger{}}
}

func (p *Provider) Name() string { return providerName }

// StartURL builds the vendor's hosted-flow entry point with the client ID,
// redirect URI, and state embedded.
func (p *Provider) StartURL(_ string, state string) (string, error) {
	base := hostedBaseURL(p.cfg.Environment)

	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("state", state)
	q.Set("scope", "identity")

	return base + "/verify/start?" + q.Encode(), nil
}

// HandleCallback extracts the provider's success indicators and delegates the
// verdict to the exchange seam. Missing parameters are a failed check, never
// an error.
func (p *Provider) HandleCallback(query url.Values) verification.Result {
	return p.exchange.Verdict(callback{
		Code:      query.Get("code"),
		InquiryID: query.Get("inquiry-id"),
	})
}

func hostedBaseURL(environment string) string {
	// Sandbox and production share a host until the vendor hands out
	// environment-specific endpoints.
	switch environment {
	case "sandbox":
		return "https://withpersona.com"
	default:
		return "https://withpersona.com"
	}
}
