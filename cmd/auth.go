package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/soundctl/soundctl/internal/auth"
	"github.com/soundctl/soundctl/internal/server"
	"github.com/soundctl/soundctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the authorization code + PKCE flow.
//
// Starts a local HTTP server, opens the browser for user authorization, and
// exchanges the callback code for a token pair.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.flow == nil {
		return fmt.Errorf("%w: Spotify client_id must be set in config.toml (run 'soundctl setup' first)", shared.ErrMissingCredentials)
	}

	record, err := r.doOAuth(ctx)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if record.Refreshable() {
		r.writePlain("✓ Session will refresh automatically until revoked\n\n")
	} else {
		r.writePlain("⚠ No refresh token issued; you will need to log in again after %s\n\n", record.ExpiresAt.Format(time.Kitchen))
	}
	r.writePlain("You can now use: soundctl player status\n")

	return nil
}

// AuthStatus reports the current authentication state.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if r.refresh == nil {
		return fmt.Errorf("%w: auth service not initialized", shared.ErrServiceUnavailable)
	}

	token, err := r.refresh.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to validate token: %w", err)
	}

	status := struct {
		Authenticated bool   `json:"authenticated"`
		ExpiresAt     string `json:"expires_at,omitempty"`
		Refreshable   bool   `json:"refreshable"`
	}{Authenticated: token != ""}

	if token != "" {
		if record, err := r.store.Get(); err == nil && record != nil {
			status.ExpiresAt = record.ExpiresAt.Format(time.RFC3339)
			status.Refreshable = record.Refreshable()
		}
	}

	if useJSON {
		return r.writeJSON(status, pretty)
	}

	if !status.Authenticated {
		r.writePlain("Not authenticated. Run: soundctl auth login\n")
		return nil
	}

	r.writePlain("✓ Authenticated\n")
	r.writePlain("  Token valid until: %s\n", status.ExpiresAt)
	if status.Refreshable {
		r.writePlain("  Refresh: automatic\n")
	} else {
		r.writePlain("  Refresh: unavailable (re-login required on expiry)\n")
	}

	return nil
}

// AuthLogout clears stored credentials.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if r.session != nil {
		if err := r.session.Logout(); err != nil {
			return fmt.Errorf("failed to log out: %w", err)
		}
	} else if r.store != nil {
		if err := r.store.Clear(); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}
	}

	r.writePlain("✓ Logged out\n")
	return nil
}

// Me shows the authenticated user's profile.
func (r *Runner) Me(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if r.library == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	profile, err := r.library.Me(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(profile, pretty)
	}

	r.writePlain("%s (%s)\n", profile.DisplayName, profile.ID)
	if profile.Email != "" {
		r.writePlain("  Email: %s\n", profile.Email)
	}
	if profile.Country != "" {
		r.writePlain("  Country: %s\n", profile.Country)
	}
	r.writePlain("  Plan: %s\n", profile.Product)
	r.writePlain("  Followers: %d\n", profile.Followers)

	return nil
}

// doOAuth executes the PKCE authorization flow with a local callback server.
func (r *Runner) doOAuth(ctx context.Context) (*auth.TokenRecord, error) {
	authURL, state, err := r.flow.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin authorization: %w", err)
	}

	callbackHandler := server.NewCallbackHandler(state)
	mux := server.NewMux(callbackHandler, server.LoggingMiddleware(r.logger))

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.CallbackResult

	select {
	case result = <-callbackHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	return r.flow.Complete(ctx, result.Code, state)
}
