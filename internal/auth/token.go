package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// SessionTokens is what a login mints. Token goes to the client cookie and
// only TokenHash is persisted; CSRF is stored with the session and echoed
// back in X-CSRF-Token on uploads.
type SessionTokens struct {
	Token     string
	TokenHash string
	CSRF      string
}

func NewSessionTokens() (SessionTokens, error) {
	token, err := GenerateToken()
	if err != nil {
		return SessionTokens{}, fmt.Errorf("session token: %w", err)
	}
	csrf, err := GenerateToken()
	if err != nil {
		return SessionTokens{}, fmt.Errorf("csrf token: %w", err)
	}
	return SessionTokens{Token: token, TokenHash: HashToken(token), CSRF: csrf}, nil
}

func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken maps a cookie value to its stored lookup key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
