package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soundctl/soundctl/internal/shared"
	"golang.org/x/oauth2"
)

// RefreshMargin is how long before expiry a token is treated as stale.
// Five minutes tolerates clock skew and request latency.
const RefreshMargin = 5 * time.Minute

// refreshBackoff are the delays between transient-failure retry attempts.
var refreshBackoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// refreshCall is a single in-flight refresh shared by every concurrent
// GetValidToken caller.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// RefreshService guards token validity. GetValidToken is the only sanctioned
// way to obtain an access token; it refreshes near expiry and serializes
// concurrent refresh attempts into one request.
type RefreshService struct {
	conf   *oauth2.Config
	store  TokenStore
	logger *log.Logger

	mu       sync.Mutex
	inflight *refreshCall

	// test seams
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRefreshService creates a RefreshService refreshing against conf's token
// endpoint and persisting through store.
func NewRefreshService(conf *oauth2.Config, store TokenStore, logger *log.Logger) *RefreshService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RefreshService{
		conf:   conf,
		store:  store,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// GetValidToken returns an access token guaranteed valid for at least the
// refresh margin, refreshing first when necessary.
//
// An empty token with a nil error means the session is unauthenticated (no
// record, or the credentials were fatally rejected and cleared). A non-nil
// error is transient: credentials are preserved and the call can be retried.
func (s *RefreshService) GetValidToken(ctx context.Context) (string, error) {
	record, err := s.store.Get()
	if err != nil {
		return "", fmt.Errorf("failed to read token store: %w", err)
	}
	if record == nil {
		return "", nil
	}

	if s.now().Before(record.ExpiresAt.Add(-RefreshMargin)) {
		return record.AccessToken, nil
	}

	if !record.Refreshable() {
		// Expired with nothing to renew it: the session is unrecoverable.
		s.logger.Warn("token expired with no refresh token, clearing credentials")
		if err := s.store.Clear(); err != nil {
			return "", fmt.Errorf("failed to clear token store: %w", err)
		}
		return "", nil
	}

	return s.refresh(ctx)
}

// Source adapts the service to an [oauth2.TokenSource] so API clients and the
// playback SDK pull live tokens through the single refresh path.
func (s *RefreshService) Source(ctx context.Context) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		token, err := s.GetValidToken(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, shared.ErrNotAuthenticated
		}
		return &oauth2.Token{AccessToken: token}, nil
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// refresh joins the in-flight refresh if one exists, otherwise starts one.
func (s *RefreshService) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	if call := s.inflight; call != nil {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	s.inflight = call
	s.mu.Unlock()

	call.token, call.err = s.doRefresh(ctx)
	close(call.done)

	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()

	return call.token, call.err
}

// doRefresh performs the refresh grant with bounded retries for transient
// failures. Fatal failures clear the store; transient ones never do.
func (s *RefreshService) doRefresh(ctx context.Context) (string, error) {
	record, err := s.store.Get()
	if err != nil {
		return "", fmt.Errorf("failed to read token store: %w", err)
	}
	if record == nil || !record.Refreshable() {
		return "", nil
	}

	// Another caller may have refreshed between our staleness check and
	// acquiring the in-flight slot.
	if s.now().Before(record.ExpiresAt.Add(-RefreshMargin)) {
		return record.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: exchangeTimeout})

	var lastErr error
	for attempt := 0; attempt <= len(refreshBackoff); attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, refreshBackoff[attempt-1]); err != nil {
				return "", err
			}
		}

		token, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: record.RefreshToken}).Token()
		if err == nil {
			return s.persist(record, token)
		}

		if isFatalRefreshError(err) {
			s.logger.Warn("refresh token rejected, clearing credentials", "error", err)
			if clearErr := s.store.Clear(); clearErr != nil {
				return "", fmt.Errorf("failed to clear token store: %w", clearErr)
			}
			return "", nil
		}

		lastErr = err
		s.logger.Debug("transient refresh failure", "attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, lastErr)
}

// persist stores the refreshed token pair. The refresh token rotates only
// when the provider issues a new one; otherwise the stored one is retained.
func (s *RefreshService) persist(old *TokenRecord, token *oauth2.Token) (string, error) {
	record := &TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if record.RefreshToken == "" {
		record.RefreshToken = old.RefreshToken
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = s.now().Add(time.Hour)
	}

	if err := s.store.Set(record); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	s.logger.Debug("access token refreshed", "expires_at", record.ExpiresAt)

	return record.AccessToken, nil
}

// isFatalRefreshError distinguishes a dead refresh token (invalid_grant, or
// another 4xx rejection of the grant) from transient failures. Rate limiting
// and server-side errors are retryable and must never clear credentials.
func isFatalRefreshError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		// Transport-level failure: network down, timeout, DNS.
		return false
	}

	if retrieveErr.ErrorCode == "invalid_grant" || strings.Contains(string(retrieveErr.Body), "invalid_grant") {
		return true
	}

	if retrieveErr.Response == nil {
		return false
	}

	code := retrieveErr.Response.StatusCode
	if code == http.StatusTooManyRequests || code >= 500 {
		return false
	}

	return code >= 400
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
