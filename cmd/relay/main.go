// Command relay runs the edge gateway in front of the orchestrator. It
// relays /auth/start and /auth/callback without resolving redirects.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"vouch/internal/platform/config"
	"vouch/internal/platform/httpserver"
	"vouch/internal/platform/logger"
	"vouch/internal/relay"
	"vouch/internal/relay/upstream"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/platform/middleware/metadata"
	"vouch/pkg/platform/middleware/requesttime"
)

func main() {
	cfg := config.RelayFromEnv()
	log := logger.New("vouch-relay")

	client := upstream.New(cfg.OrchestratorURL,
		upstream.WithStrictStatus(),
		upstream.WithTimeout(cfg.UpstreamTimeout),
	)

	router := chi.NewRouter()
	router.Use(requesttime.Middleware)
	router.Use(metadata.Middleware)
	relay.New(client, log).Register(router)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting relay", "addr", cfg.Addr, "upstream", cfg.OrchestratorURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("relay exited", "error", err)
		os.Exit(1)
	}
}
