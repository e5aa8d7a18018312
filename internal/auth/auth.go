// Package auth implements the OAuth token lifecycle: obtaining a token pair
// through the authorization-code + PKCE flow, persisting it, refreshing it
// transparently, and exposing session state to the rest of the application.
//
// All token mutation funnels through [RefreshService]; nothing else writes to
// a [TokenStore] once the initial exchange has completed.
package auth

import (
	"sync"
	"time"
)

// TokenRecord is the persisted credential pair. AccessToken must never be
// used past ExpiresAt without revalidating through [RefreshService]. A record
// with no refresh token cannot be renewed; once expired it forces re-login.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at the given time.
func (t *TokenRecord) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Refreshable reports whether the record carries a refresh token.
func (t *TokenRecord) Refreshable() bool {
	return t.RefreshToken != ""
}

// TokenStore persists a single token record across process restarts.
//
// Implementations do no validation; that is [RefreshService]'s job. Get
// returns (nil, nil) when no record is stored.
type TokenStore interface {
	Get() (*TokenRecord, error)
	Set(record *TokenRecord) error
	Clear() error
}

// MemoryStore is an in-process [TokenStore] for tests and ephemeral sessions.
type MemoryStore struct {
	mu     sync.Mutex
	record *TokenRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, nil
	}
	copied := *s.record
	return &copied, nil
}

func (s *MemoryStore) Set(record *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.record = &copied
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}
