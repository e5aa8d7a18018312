package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundctl/soundctl/internal/shared"
	"golang.org/x/oauth2"
)

func newRefreshService(tokenURL string, store TokenStore) *RefreshService {
	srv := NewRefreshService(&oauth2.Config{
		ClientID: "test_client_id",
		Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
	}, store, nil)
	srv.sleep = func(context.Context, time.Duration) error { return nil }
	return srv
}

func storeWith(record *TokenRecord) *MemoryStore {
	store := NewMemoryStore()
	if record != nil {
		store.Set(record)
	}
	return store
}

func TestRefreshService(t *testing.T) {
	t.Run("GetValidToken", func(t *testing.T) {
		t.Run("No Record Means Unauthenticated", func(t *testing.T) {
			srv := newRefreshService("http://invalid.test", NewMemoryStore())

			token, err := srv.GetValidToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "" {
				t.Errorf("expected empty token, got %q", token)
			}
		})

		t.Run("Fresh Token Returned Without Refresh", func(t *testing.T) {
			called := false
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "fresh_token",
				RefreshToken: "refresh",
				ExpiresAt:    time.Now().Add(time.Hour),
			})
			srv := newRefreshService(server.URL, store)

			token, err := srv.GetValidToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "fresh_token" {
				t.Errorf("expected stored token, got %q", token)
			}
			if called {
				t.Error("token endpoint must not be called for a fresh token")
			}
		})

		t.Run("Near Expiry Triggers Refresh", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.FormValue("grant_type") != "refresh_token" {
					t.Errorf("expected refresh_token grant, got %q", r.FormValue("grant_type"))
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token": "renewed_token",
					"token_type":   "Bearer",
					"expires_in":   3600,
				})
			}))
			defer server.Close()

			// Still two minutes left, but inside the five-minute margin.
			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "refresh",
				ExpiresAt:    time.Now().Add(2 * time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			token, err := srv.GetValidToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "renewed_token" {
				t.Errorf("expected renewed token, got %q", token)
			}
		})

		t.Run("Expired Without Refresh Token Clears Store", func(t *testing.T) {
			store := storeWith(&TokenRecord{
				AccessToken: "dead_token",
				ExpiresAt:   time.Now().Add(-time.Minute),
			})
			srv := newRefreshService("http://invalid.test", store)

			token, err := srv.GetValidToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "" {
				t.Errorf("expected empty token, got %q", token)
			}

			record, _ := store.Get()
			if record != nil {
				t.Error("expected store to be cleared")
			}
		})
	})

	t.Run("Concurrent Refresh Collapses To One Request", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			time.Sleep(50 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "renewed_token",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		store := storeWith(&TokenRecord{
			AccessToken:  "stale_token",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(-time.Minute),
		})
		srv := newRefreshService(server.URL, store)

		const callers = 10
		var wg sync.WaitGroup
		tokens := make([]string, callers)
		errs := make([]error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = srv.GetValidToken(context.Background())
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			if errs[i] != nil {
				t.Fatalf("caller %d: expected no error, got %v", i, errs[i])
			}
			if tokens[i] != "renewed_token" {
				t.Errorf("caller %d: expected renewed token, got %q", i, tokens[i])
			}
		}

		if got := requests.Load(); got != 1 {
			t.Errorf("expected exactly one refresh request, got %d", got)
		}
	})

	t.Run("Rotation", func(t *testing.T) {
		t.Run("New Refresh Token Replaces Old", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token":  "renewed_token",
					"refresh_token": "rotated_refresh",
					"token_type":    "Bearer",
					"expires_in":    3600,
				})
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "old_refresh",
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			if _, err := srv.GetValidToken(context.Background()); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			record, _ := store.Get()
			if record == nil || record.RefreshToken != "rotated_refresh" {
				t.Errorf("expected rotated refresh token, got %+v", record)
			}
		})

		t.Run("Missing Refresh Token Retains Old", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token": "renewed_token",
					"token_type":   "Bearer",
					"expires_in":   3600,
				})
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "old_refresh",
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			if _, err := srv.GetValidToken(context.Background()); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			record, _ := store.Get()
			if record == nil || record.RefreshToken != "old_refresh" {
				t.Errorf("expected old refresh token retained, got %+v", record)
			}
		})
	})

	t.Run("Failure Classification", func(t *testing.T) {
		t.Run("Invalid Grant Clears Store", func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "revoked_refresh",
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			token, err := srv.GetValidToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "" {
				t.Errorf("expected empty token after fatal failure, got %q", token)
			}

			record, _ := store.Get()
			if record != nil {
				t.Error("expected credentials cleared after invalid_grant")
			}
			if got := requests.Load(); got != 1 {
				t.Errorf("fatal failures must not be retried, got %d requests", got)
			}
		})

		t.Run("Rate Limit Retries Then Preserves Credentials", func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{"error": "rate limited"})
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "good_refresh",
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			_, err := srv.GetValidToken(context.Background())
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Fatalf("expected ErrRefreshFailed, got %v", err)
			}

			if got := requests.Load(); got != int32(len(refreshBackoff))+1 {
				t.Errorf("expected %d attempts, got %d", len(refreshBackoff)+1, got)
			}

			record, _ := store.Get()
			if record == nil || record.RefreshToken != "good_refresh" {
				t.Error("rate limiting must preserve stored credentials")
			}
		})

		t.Run("Server Error Retries Then Preserves Credentials", func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "good_refresh",
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			_, err := srv.GetValidToken(context.Background())
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Fatalf("expected ErrRefreshFailed, got %v", err)
			}

			if got := requests.Load(); got != int32(len(refreshBackoff))+1 {
				t.Errorf("expected %d attempts, got %d", len(refreshBackoff)+1, got)
			}

			record, _ := store.Get()
			if record == nil || record.RefreshToken != "good_refresh" {
				t.Error("transient failures must preserve stored credentials")
			}
		})

		t.Run("Recovers On Retry", func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if requests.Add(1) == 1 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token": "renewed_token",
					"token_type":   "Bearer",
					"expires_in":   3600,
				})
			}))
			defer server.Close()

			store := storeWith(&TokenRecord{
				AccessToken:  "stale_token",
				RefreshToken: "refresh",
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			srv := newRefreshService(server.URL, store)

			token, err := srv.GetValidToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "renewed_token" {
				t.Errorf("expected renewed token after retry, got %q", token)
			}
			if got := requests.Load(); got != 2 {
				t.Errorf("expected 2 attempts, got %d", got)
			}
		})
	})

	t.Run("Source", func(t *testing.T) {
		t.Run("Unauthenticated", func(t *testing.T) {
			srv := newRefreshService("http://invalid.test", NewMemoryStore())

			_, err := srv.Source(context.Background()).Token()
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("Returns Valid Token", func(t *testing.T) {
			store := storeWith(&TokenRecord{
				AccessToken:  "fresh_token",
				RefreshToken: "refresh",
				ExpiresAt:    time.Now().Add(time.Hour),
			})
			srv := newRefreshService("http://invalid.test", store)

			token, err := srv.Source(context.Background()).Token()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "fresh_token" {
				t.Errorf("expected stored token, got %q", token.AccessToken)
			}
		})
	})
}
