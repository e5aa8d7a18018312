package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/soundctl/soundctl/internal/shared"
)

func newTokenServer(t *testing.T, capture func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request form: %v", err)
		}
		if capture != nil {
			capture(r)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "test_access_token",
			"refresh_token": "test_refresh_token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
}

func TestFlow(t *testing.T) {
	t.Run("NewFlow", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewFlow(FlowConfig{RedirectURI: "http://127.0.0.1:8888/callback"}, NewMemoryStore(), nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Redirect URI", func(t *testing.T) {
			_, err := NewFlow(FlowConfig{ClientID: "test_client_id"}, NewMemoryStore(), nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Begin", func(t *testing.T) {
		flow, err := NewFlow(FlowConfig{
			ClientID:    "test_client_id",
			RedirectURI: "http://127.0.0.1:8888/callback",
			Scopes:      []string{"user-read-private"},
		}, NewMemoryStore(), nil)
		if err != nil {
			t.Fatalf("failed to create flow: %v", err)
		}

		authURL, state, err := flow.Begin()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		parsed, err := url.Parse(authURL)
		if err != nil {
			t.Fatalf("failed to parse auth URL: %v", err)
		}
		query := parsed.Query()

		if query.Get("client_id") != "test_client_id" {
			t.Errorf("expected client_id in auth URL, got %q", query.Get("client_id"))
		}
		if query.Get("state") != state {
			t.Errorf("expected state %q in auth URL, got %q", state, query.Get("state"))
		}
		if query.Get("code_challenge_method") != "S256" {
			t.Errorf("expected S256 challenge method, got %q", query.Get("code_challenge_method"))
		}
		if challenge := query.Get("code_challenge"); len(challenge) != 43 {
			t.Errorf("expected 43-character code challenge, got %q", challenge)
		}
		if !strings.Contains(authURL, "accounts.spotify.com") {
			t.Error("auth URL should point at the Spotify authorize endpoint")
		}
	})

	t.Run("Complete", func(t *testing.T) {
		t.Run("Exchanges Code With Matching Verifier", func(t *testing.T) {
			var capturedVerifier, capturedCode string
			server := newTokenServer(t, func(r *http.Request) {
				capturedVerifier = r.FormValue("code_verifier")
				capturedCode = r.FormValue("code")
			})
			defer server.Close()

			store := NewMemoryStore()
			flow, err := NewFlow(FlowConfig{
				ClientID:    "test_client_id",
				RedirectURI: "http://127.0.0.1:8888/callback",
				TokenURL:    server.URL,
			}, store, nil)
			if err != nil {
				t.Fatalf("failed to create flow: %v", err)
			}

			authURL, state, err := flow.Begin()
			if err != nil {
				t.Fatalf("failed to begin flow: %v", err)
			}
			parsed, _ := url.Parse(authURL)
			challenge := parsed.Query().Get("code_challenge")

			record, err := flow.Complete(context.Background(), "test_code", state)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if capturedCode != "test_code" {
				t.Errorf("expected code 'test_code' in exchange, got %q", capturedCode)
			}
			if ChallengeS256(capturedVerifier) != challenge {
				t.Error("exchanged verifier does not match the advertised challenge")
			}

			if record.AccessToken != "test_access_token" {
				t.Errorf("expected access token from exchange, got %q", record.AccessToken)
			}
			if record.RefreshToken != "test_refresh_token" {
				t.Errorf("expected refresh token from exchange, got %q", record.RefreshToken)
			}
			if record.ExpiresAt.IsZero() {
				t.Error("expected non-zero expiry")
			}

			stored, err := store.Get()
			if err != nil {
				t.Fatalf("failed to read store: %v", err)
			}
			if stored == nil || stored.AccessToken != "test_access_token" {
				t.Error("expected exchanged tokens to be persisted")
			}
		})

		t.Run("State Mismatch Never Exchanges", func(t *testing.T) {
			exchanged := false
			server := newTokenServer(t, func(r *http.Request) {
				exchanged = true
			})
			defer server.Close()

			store := NewMemoryStore()
			flow, err := NewFlow(FlowConfig{
				ClientID:    "test_client_id",
				RedirectURI: "http://127.0.0.1:8888/callback",
				TokenURL:    server.URL,
			}, store, nil)
			if err != nil {
				t.Fatalf("failed to create flow: %v", err)
			}

			if _, _, err := flow.Begin(); err != nil {
				t.Fatalf("failed to begin flow: %v", err)
			}

			_, err = flow.Complete(context.Background(), "test_code", "forged_state")
			if !errors.Is(err, shared.ErrStateMismatch) {
				t.Errorf("expected ErrStateMismatch, got %v", err)
			}

			if exchanged {
				t.Error("token endpoint must not be called on state mismatch")
			}

			stored, _ := store.Get()
			if stored != nil {
				t.Error("expected no tokens persisted after rejected callback")
			}
		})

		t.Run("Verifier Is Single Use", func(t *testing.T) {
			server := newTokenServer(t, nil)
			defer server.Close()

			flow, err := NewFlow(FlowConfig{
				ClientID:    "test_client_id",
				RedirectURI: "http://127.0.0.1:8888/callback",
				TokenURL:    server.URL,
			}, NewMemoryStore(), nil)
			if err != nil {
				t.Fatalf("failed to create flow: %v", err)
			}

			_, state, err := flow.Begin()
			if err != nil {
				t.Fatalf("failed to begin flow: %v", err)
			}

			if _, err := flow.Complete(context.Background(), "test_code", state); err != nil {
				t.Fatalf("first completion failed: %v", err)
			}

			_, err = flow.Complete(context.Background(), "test_code", state)
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed on replayed callback, got %v", err)
			}
		})

		t.Run("Missing Code", func(t *testing.T) {
			flow, err := NewFlow(FlowConfig{
				ClientID:    "test_client_id",
				RedirectURI: "http://127.0.0.1:8888/callback",
			}, NewMemoryStore(), nil)
			if err != nil {
				t.Fatalf("failed to create flow: %v", err)
			}

			_, state, err := flow.Begin()
			if err != nil {
				t.Fatalf("failed to begin flow: %v", err)
			}

			_, err = flow.Complete(context.Background(), "", state)
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed for missing code, got %v", err)
			}
		})
	})
}
