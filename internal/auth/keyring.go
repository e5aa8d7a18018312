package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "soundctl"
	keyringUser    = "spotify-tokens"
)

// KeyringStore persists the token record in the operating system keychain.
// Preferred over the database store on desktops where a keychain is available.
type KeyringStore struct {
	service string
	user    string
}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService, user: keyringUser}
}

func (s *KeyringStore) Get() (*TokenRecord, error) {
	data, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keychain: %w", err)
	}

	var record TokenRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to decode stored tokens: %w", err)
	}

	return &record, nil
}

func (s *KeyringStore) Set(record *TokenRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	if err := keyring.Set(s.service, s.user, string(data)); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}

	return nil
}

func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to clear keychain: %w", err)
	}
	return nil
}
