package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soundctl/soundctl/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// exchangeTimeout bounds the token exchange and refresh calls so a dead
	// network cannot leave the session stuck in a loading state.
	exchangeTimeout = 15 * time.Second
)

// FlowConfig carries the OAuth client settings for the PKCE flow.
type FlowConfig struct {
	ClientID    string
	RedirectURI string
	Scopes      []string

	// AuthURL and TokenURL override the provider endpoints; used in tests.
	AuthURL  string
	TokenURL string
}

// pendingAuth is the verifier/state pair for an authorization in flight.
// It is single use: consumed (or discarded) by the first Complete call.
type pendingAuth struct {
	state    string
	verifier string
}

// Flow drives the authorization-code + PKCE flow: Begin builds the authorize
// URL and records the verifier, Complete validates the callback and exchanges
// the code for a token pair.
type Flow struct {
	conf   *oauth2.Config
	store  TokenStore
	logger *log.Logger

	mu      sync.Mutex
	pending *pendingAuth

	now func() time.Time
}

// NewFlow creates a Flow for the given client settings, persisting exchanged
// tokens to store.
func NewFlow(cfg FlowConfig, store TokenStore, logger *log.Logger) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", shared.ErrMissingCredentials)
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("%w: redirect_uri is required", shared.ErrMissingCredentials)
	}

	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = spotifyAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	conf := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}

	return &Flow{conf: conf, store: store, logger: logger, now: time.Now}, nil
}

// Config exposes the underlying [oauth2.Config], shared with [RefreshService]
// so the refresh grant hits the same token endpoint.
func (f *Flow) Config() *oauth2.Config {
	return f.conf
}

// Begin generates a fresh verifier and CSRF state, records them as the
// pending authorization, and returns the authorize URL to open in a browser.
// Any previously pending authorization is discarded.
func (f *Flow) Begin() (authURL, state string, err error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return "", "", err
	}

	state, err = shared.GenerateState()
	if err != nil {
		return "", "", err
	}

	f.mu.Lock()
	f.pending = &pendingAuth{state: state, verifier: verifier}
	f.mu.Unlock()

	authURL = f.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", ChallengeS256(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	return authURL, state, nil
}

// Complete validates the callback parameters and exchanges the authorization
// code for a token pair, persisting the result.
//
// The state must equal the pending one exactly; a mismatch is fatal and no
// exchange is attempted. The verifier is deleted on every outcome so it can
// never be replayed, and a failed exchange never leaves partial credentials
// behind.
func (f *Flow) Complete(ctx context.Context, code, state string) (*TokenRecord, error) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	if pending == nil {
		return nil, fmt.Errorf("%w: no authorization in progress", shared.ErrAuthFailed)
	}

	if state != pending.state {
		f.logger.Warn("oauth callback state mismatch, aborting exchange")
		return nil, shared.ErrStateMismatch
	}

	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", shared.ErrAuthFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: exchangeTimeout})

	token, err := f.conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pending.verifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", shared.ErrAuthFailed, err)
	}

	record := &TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if record.ExpiresAt.IsZero() {
		// Some providers omit expires_in; assume the usual one-hour window.
		record.ExpiresAt = f.now().Add(time.Hour)
	}

	if err := f.store.Set(record); err != nil {
		return nil, fmt.Errorf("failed to persist tokens: %w", err)
	}

	f.logger.Info("authorization complete", "refreshable", record.Refreshable())

	return record, nil
}
