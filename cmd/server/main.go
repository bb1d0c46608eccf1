// Command server runs the verification orchestrator: the start/callback
// endpoints, the user status API, and the tier-gated portal surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"vouch/internal/audit"
	auditmem "vouch/internal/audit/store/memory"
	auditpg "vouch/internal/audit/store/postgres"
	"vouch/internal/platform/config"
	"vouch/internal/platform/httpserver"
	"vouch/internal/platform/logger"
	"vouch/internal/platform/postgres"
	redisplatform "vouch/internal/platform/redis"
	"vouch/internal/portal"
	"vouch/internal/portal/apikey"
	"vouch/internal/tierclaim"
	"vouch/internal/tiergate"
	"vouch/internal/verification/handler"
	"vouch/internal/verification/metrics"
	"vouch/internal/verification/provider"
	"vouch/internal/verification/provider/persona"
	"vouch/internal/verification/provider/sandbox"
	"vouch/internal/verification/service"
	sessionstore "vouch/internal/verification/store/session"
	statusstore "vouch/internal/verification/store/status"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/platform/middleware/metadata"
	"vouch/pkg/platform/middleware/requesttime"
)

// tierClaimTTL bounds how long a minted tier cookie stays valid before the
// portal must re-read /user/{id}/status.
const tierClaimTTL = 24 * time.Hour

// sessionGCInterval paces the expired-session sweep for stores without
// native TTL eviction.
const sessionGCInterval = time.Minute

func main() {
	cfg := config.FromEnv()
	log := logger.New("vouch-server")

	// Session store: redis when configured, in-memory otherwise.
	var sessions sessionstore.Store
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = sessionstore.NewRedisStore(redisClient.Client)
		log.Info("session store: redis")
	} else {
		sessions = sessionstore.NewInMemoryStore()
		log.Info("session store: in-memory")
	}

	// Durable stores: postgres when configured, in-memory otherwise.
	var (
		statuses     statusstore.Store
		auditStore   audit.Store
		consumptions tiergate.ConsumptionStore
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		statuses = statusstore.NewPostgresStore(db)
		auditStore = auditpg.New(db)
		consumptions = tiergate.NewPostgresConsumptionStore(db)
		log.Info("durable stores: postgres")
	} else {
		statuses = statusstore.NewInMemoryStore()
		auditStore = auditmem.NewInMemoryStore()
		consumptions = tiergate.NewInMemoryConsumptionStore()
		log.Info("durable stores: in-memory")
	}

	auditor := audit.NewPublisher(auditStore, audit.WithAsyncBuffer(256))
	defer auditor.Close()

	registry := provider.NewRegistry(
		sandbox.New(cfg.Verify.CallbackURL),
		persona.New(persona.Config{
			ClientID:    cfg.Persona.ClientID,
			RedirectURI: cfg.Persona.RedirectURI,
			Environment: cfg.Persona.Environment,
		}),
	)

	claims := tierclaim.NewService(cfg.TierSigningKey, tierClaimTTL)
	verifMetrics := metrics.New()

	svc := service.New(
		service.Config{
			ActiveProvider: cfg.Verify.Provider,
			SessionTTL:     cfg.Verify.SessionTTL,
			WebOrigin:      cfg.PublicWebOrigin,
		},
		registry, sessions, statuses, claims, auditor, verifMetrics, log,
	)

	gate := tiergate.New(statuses, consumptions, log)
	keyring, err := buildKeyring(cfg.Portal.APIKeys)
	if err != nil {
		log.Error("invalid portal api key configuration", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(requesttime.Middleware)
	router.Use(metadata.Middleware)
	handler.New(svc, log).Register(router)
	portal.New(gate, keyring, auditor, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting orchestrator", "addr", cfg.Addr, "provider", cfg.Verify.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(sessionGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				removed, err := sessions.DeleteExpired(ctx, now)
				if err != nil {
					log.Warn("session gc failed", "error", err)
					continue
				}
				if removed > 0 {
					log.Info("session gc", "removed", removed)
				}
			}
		}
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// buildKeyring accepts both bcrypt hashes and plaintext keys from the
// environment; plaintext entries are hashed at startup.
func buildKeyring(entries []string) (*apikey.Keyring, error) {
	hashes := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry, "$2") {
			hashes = append(hashes, entry)
			continue
		}
		hash, err := apikey.Hash(entry)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return apikey.NewKeyring(hashes), nil
}
