// Package provider defines the contract every verification backend
// implements. Implementations return verdict facts only; session handling,
// tier decisions, and persistence belong to the orchestrator.
package provider

import (
	"fmt"
	"net/url"

	"vouch/internal/verification"
)

// Provider abstracts one verification backend with redirect semantics.
type Provider interface {
	// Name returns the provider identifier (e.g. "sandbox", "persona").
	Name() string

	// StartURL constructs the absolute URL the browser is redirected to in
	// order to begin verification, embedding state so the callback can be
	// correlated. Implementations must normalize bad configuration to a safe
	// absolute default rather than emit a broken relative redirect.
	StartURL(userID string, state string) (string, error)

	// HandleCallback interprets the raw callback query into a verdict. It
	// must tolerate missing optional parameters and treat the provider's own
	// success indicator as the sole basis for success; contradictory or
	// unparseable input yields a failed result with a reason code, never an
	// error or panic.
	HandleCallback(query url.Values) verification.Result
}

// Registry holds all configured providers and allows lookup by name.
// It performs no verification logic itself.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers by name. Names must be unique.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider by name or an error if not registered.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown verification provider: %s", name)
	}
	return p, nil
}
