package config

import (
	"os"
	"strings"
	"time"
)

// Server captures orchestrator-level configuration.
type Server struct {
	Addr string

	// PublicWebOrigin is where browsers land after verification completes
	// (the portal frontend).
	PublicWebOrigin string

	// TierSigningKey signs the tier status cookie. Only the orchestrator
	// holds this key; presentation layers verify but never mint.
	TierSigningKey string

	Verify  Verify
	Persona Persona
	Redis   Redis
	Portal  Portal

	// DatabaseURL enables the postgres-backed status, audit, and submission
	// stores. Empty means in-memory (dev/test).
	DatabaseURL string
}

// Verify selects and configures the active verification provider.
type Verify struct {
	// Provider is "sandbox" or "persona".
	Provider string

	// CallbackURL is the externally reachable /auth/callback on the relay.
	// Providers embed it in start URLs, so it must be absolute.
	CallbackURL string

	// SessionTTL bounds the CSRF/replay window for pending sessions.
	SessionTTL time.Duration
}

// Persona holds the hosted provider's credentials and environment.
type Persona struct {
	ClientID    string
	RedirectURI string
	Environment string
}

// Redis configures the session store backend. Empty URL means in-memory.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Portal holds submission-surface settings.
type Portal struct {
	// APIKeys is the accepted key set for /portal/validate-api-key. Entries
	// may be plaintext or bcrypt hashes (prefixed "$2").
	APIKeys []string
}

// Relay captures edge relay configuration.
type Relay struct {
	Addr            string
	OrchestratorURL string
	UpstreamTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:            envOr("VOUCH_ADDR", ":8080"),
		PublicWebOrigin: envOr("PUBLIC_WEB_ORIGIN", "http://localhost:3000"),
		// Default is for development only; override in production.
		TierSigningKey: envOr("TIER_SIGNING_KEY", "dev-tier-key-change-in-production"),
		Verify: Verify{
			Provider:    strings.ToLower(envOr("VERIFY_PROVIDER", "sandbox")),
			CallbackURL: envOr("VERIFY_CALLBACK_URL", "http://localhost:7070/auth/callback"),
			SessionTTL:  durationOr("VERIFY_SESSION_TTL", 15*time.Minute),
		},
		Persona: Persona{
			ClientID:    os.Getenv("PERSONA_CLIENT_ID"),
			RedirectURI: envOr("PERSONA_REDIRECT_URI", "http://localhost:7070/auth/callback"),
			Environment: envOr("PERSONA_ENV", "sandbox"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Portal: Portal{
			APIKeys: splitKeys(os.Getenv("PORTAL_API_KEYS")),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

// RelayFromEnv builds the relay config.
func RelayFromEnv() Relay {
	return Relay{
		Addr:            envOr("RELAY_ADDR", ":7070"),
		OrchestratorURL: envOr("ORCHESTRATOR_URL", "http://localhost:8080"),
		UpstreamTimeout: durationOr("RELAY_UPSTREAM_TIMEOUT", 10*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
