package auth

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/shared"
)

// pollInterval is how often an active session re-validates its token.
const pollInterval = time.Minute

// ProfileFetcher retrieves the authenticated user's profile.
type ProfileFetcher interface {
	Me(ctx context.Context) (*models.UserProfile, error)
}

// SessionState is a point-in-time snapshot of the authentication state.
//
// Loading is true until the first validation resolves; consumers gating
// protected views must not render them while Loading is set.
type SessionState struct {
	Authenticated bool
	Token         string
	User          *models.UserProfile
	Loading       bool
	Err           string
}

// Session is the process-wide authentication state holder. It is constructed
// explicitly and injected into consumers; there is no package-level session.
type Session struct {
	refresh *RefreshService
	profile ProfileFetcher
	logger  *log.Logger

	mu    sync.Mutex
	state SessionState
	subs  []chan SessionState

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a Session resolving tokens through refresh and lazily
// fetching the user profile through profile (which may be nil).
func NewSession(refresh *RefreshService, profile ProfileFetcher, logger *log.Logger) *Session {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Session{
		refresh: refresh,
		profile: profile,
		logger:  logger,
		state:   SessionState{Loading: true},
	}
}

// Start resolves the authentication state once, then polls every minute until
// ctx is cancelled or Stop is called. Loading clears only after the first
// resolution completes.
func (s *Session) Start(ctx context.Context) error {
	err := s.RefreshAuthState(ctx)

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.poll(pollCtx, done)

	return err
}

// Stop halts the polling loop. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Session) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.State().Authenticated {
				continue
			}
			if err := s.RefreshAuthState(ctx); err != nil {
				s.logger.Warn("periodic auth refresh failed", "error", err)
			}
		}
	}
}

// RefreshAuthState re-validates the token through the refresh service and
// updates the published state. A transient refresh failure keeps the session
// authenticated and surfaces the error as a state flag.
func (s *Session) RefreshAuthState(ctx context.Context) error {
	token, err := s.refresh.GetValidToken(ctx)
	if err != nil {
		s.update(func(st *SessionState) {
			st.Loading = false
			st.Err = err.Error()
		})
		return err
	}

	var becameAuthenticated bool
	s.update(func(st *SessionState) {
		becameAuthenticated = token != "" && st.User == nil
		st.Authenticated = token != ""
		st.Token = token
		st.Loading = false
		st.Err = ""
		if token == "" {
			st.User = nil
		}
	})

	if becameAuthenticated && s.profile != nil {
		s.fetchProfile(ctx)
	}

	return nil
}

// fetchProfile loads the user profile once per authenticated session. Fetch
// failures degrade to a nil user rather than tearing the session down.
func (s *Session) fetchProfile(ctx context.Context) {
	user, err := s.profile.Me(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch user profile", "error", err)
		return
	}

	s.update(func(st *SessionState) {
		if st.Authenticated {
			st.User = user
		}
	})
}

// Logout clears stored credentials and in-memory state. Idempotent.
func (s *Session) Logout() error {
	if err := s.refresh.store.Clear(); err != nil {
		return err
	}

	s.update(func(st *SessionState) {
		*st = SessionState{}
	})

	s.logger.Info("logged out")

	return nil
}

// State returns the current snapshot.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated reports whether a usable token is present.
func (s *Session) IsAuthenticated() bool {
	return s.State().Authenticated
}

// Subscribe returns a channel receiving every state change. The channel is
// buffered; slow consumers drop intermediate snapshots rather than block the
// session.
func (s *Session) Subscribe() <-chan SessionState {
	ch := make(chan SessionState, 8)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// update applies fn to the state under the lock and notifies subscribers.
func (s *Session) update(fn func(*SessionState)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
