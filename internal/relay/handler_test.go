package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"vouch/internal/relay/upstream"
)

func newRelay(t *testing.T, orchestrator http.HandlerFunc, opts ...upstream.Option) chi.Router {
	t.Helper()
	server := httptest.NewServer(orchestrator)
	t.Cleanup(server.Close)

	router := chi.NewRouter()
	New(upstream.New(server.URL, opts...), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(router)
	return router
}

func TestRelay_PassesThroughRedirect(t *testing.T) {
	router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "u1" {
			t.Fatalf("expected query to be forwarded, got %q", got)
		}
		w.Header().Set("Location", "https://vendor/verify?x=1")
		w.WriteHeader(http.StatusFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/start?user_id=u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://vendor/verify?x=1" {
		t.Fatalf("unexpected Location: %s", loc)
	}
	if rec.Body.Len() != 0 {
		t.Fatal("redirect body must be dropped")
	}
}

func TestRelay_RedirectSurfacedAsStatusError(t *testing.T) {
	router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://vendor/verify?x=1")
		w.WriteHeader(http.StatusFound)
	}, upstream.WithStrictStatus())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 from strict-mode error encoding, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://vendor/verify?x=1" {
		t.Fatalf("unexpected Location: %s", loc)
	}
}

func TestRelay_PreservesRedirectStatusVariants(t *testing.T) {
	for _, status := range []int{http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect} {
		router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "https://vendor/next")
			w.WriteHeader(status)
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/start", nil))

		if rec.Code != status {
			t.Fatalf("expected %d to be preserved, got %d", status, rec.Code)
		}
	}
}

func TestRelay_ForwardsSetCookieOnRedirect(t *testing.T) {
	router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "vouch_tier", Value: "signed", Path: "/", HttpOnly: true})
		w.Header().Set("Location", "http://localhost:5173/auth/result?status=verified")
		w.WriteHeader(http.StatusFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "vouch_tier" {
		t.Fatalf("expected tier cookie to pass through, got %v", cookies)
	}
}

func TestRelay_PassesThroughClientError(t *testing.T) {
	router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_input"}`))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/start", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Body.String() != `{"error":"invalid_input"}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRelay_StrictModeClientErrorStillPassesThrough(t *testing.T) {
	router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}, upstream.WithStrictStatus())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.String() != "missing" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRelay_UpstreamDownBecomes502(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close() // connection refused from here on

	router := chi.NewRouter()
	New(upstream.New(server.URL), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/start", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON diagnostic body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("expected error field in diagnostic body")
	}
}

func TestRelay_TimeoutBecomes502(t *testing.T) {
	router := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}, upstream.WithTimeout(50*time.Millisecond))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/start", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on timeout, got %d", rec.Code)
	}
}
