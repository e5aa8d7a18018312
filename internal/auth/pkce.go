package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const verifierLength = 128

const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateVerifier returns a high-entropy PKCE code verifier: 128 characters
// drawn from the unreserved alphanumeric set (RFC 7636 §4.1).
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	for i, b := range buf {
		buf[i] = verifierAlphabet[int(b)%len(verifierAlphabet)]
	}

	return string(buf), nil
}

// ChallengeS256 derives the code challenge for a verifier:
// base64url(SHA-256(verifier)), unpadded (RFC 7636 §4.2).
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
