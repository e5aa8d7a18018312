package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/soundctl/soundctl/internal/auth"
)

// TokenRepository implements [auth.TokenStore] on top of the tokens table.
// The table holds at most one row; Set overwrites it wholesale.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get retrieves the stored token pair, returning (nil, nil) when none is stored.
func (r *TokenRepository) Get() (*auth.TokenRecord, error) {
	query := `
		SELECT access_token, refresh_token, expires_at
		FROM tokens
		WHERE id = 1
	`

	var (
		accessToken  string
		refreshToken sql.NullString
		expiresAt    time.Time
	)

	err := r.db.QueryRow(query).Scan(&accessToken, &refreshToken, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}

	record := &auth.TokenRecord{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}
	if refreshToken.Valid {
		record.RefreshToken = refreshToken.String
	}

	return record, nil
}

// Set replaces the stored token pair.
func (r *TokenRepository) Set(record *auth.TokenRecord) error {
	query := `
		INSERT INTO tokens (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	var refreshToken sql.NullString
	if record.RefreshToken != "" {
		refreshToken = sql.NullString{String: record.RefreshToken, Valid: true}
	}

	_, err := r.db.Exec(query, record.AccessToken, refreshToken, record.ExpiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	return nil
}

// Clear removes the stored token pair. Clearing an empty table is not an error.
func (r *TokenRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM tokens WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}
