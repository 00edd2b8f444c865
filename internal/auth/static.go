package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStaticTokenExpired is returned once a static token passes its expiry.
var ErrStaticTokenExpired = errors.New("API token has expired, please run 'catalog login' again")

// StaticTokenManager serves a fixed API token. It cannot renew it.
type StaticTokenManager struct {
	mu    sync.RWMutex
	token Token
}

// NewStaticTokenManager wraps an API token that never expires.
func NewStaticTokenManager(token string) *StaticTokenManager {
	return &StaticTokenManager{token: Token{AccessToken: token, TokenType: "bearer"}}
}

// GetToken returns the token while it is valid.
func (m *StaticTokenManager) GetToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.token.Valid() {
		if m.token.AccessToken == "" {
			return "", ErrNoValidCredentials
		}

		return "", ErrStaticTokenExpired
	}

	return m.token.AccessToken, nil
}

// RefreshToken always fails; API tokens are rotated out of band.
func (m *StaticTokenManager) RefreshToken(context.Context) error {
	return ErrNoValidCredentials
}

// SetToken replaces the token.
func (m *StaticTokenManager) SetToken(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = Token{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt}
}
