package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister writes renewed tokens back to the CLI configuration.
type ConfigPersister interface {
	UpdateAPIToken(apiDomain, token string, expiresAt time.Time, refreshToken string) error
}

// ConfigTokenManager renews tokens for one configured tenant and writes every
// token that differs from the saved one back through a ConfigPersister.
type ConfigTokenManager struct {
	tokens    *OAuth2TokenManager
	persister ConfigPersister
	tenant    string
	logger    catalog.Logger

	mu    sync.Mutex
	saved Token
	saves sync.WaitGroup
}

// NewConfigTokenManager creates a manager for the tenant keyed by apiDomain.
// stored is the token loaded from configuration and may be nil. logger may be nil.
func NewConfigTokenManager(config *OAuth2Config, persister ConfigPersister, apiDomain string, stored *Token, logger catalog.Logger) *ConfigTokenManager {
	if logger == nil {
		logger = catalog.NopLogger{}
	}

	manager := &ConfigTokenManager{
		tokens:    NewOAuth2TokenManager(config),
		persister: persister,
		tenant:    apiDomain,
		logger:    logger,
	}

	if stored != nil && stored.AccessToken != "" {
		manager.tokens.SetToken(stored.AccessToken, stored.ExpiresAt)
		manager.saved = *manager.tokens.Token()
	}

	return manager
}

// GetToken returns a valid access token. A token renewed on the way is saved
// in the background; call Wait before exiting.
func (m *ConfigTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.tokens.GetToken(ctx)
	if err != nil {
		return "", err
	}

	if current, changed := m.unsaved(); changed {
		m.saves.Add(1)

		go func() {
			defer m.saves.Done()

			m.save(current)
		}()
	}

	return token, nil
}

// RefreshToken renews the token and saves it before returning.
func (m *ConfigTokenManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.tokens.RefreshToken(ctx)
	if err != nil {
		return err
	}

	if current, changed := m.unsaved(); changed {
		m.save(current)
	}

	return nil
}

// SetToken replaces the token without saving it.
func (m *ConfigTokenManager) SetToken(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens.SetToken(token, expiresAt)
	m.saved = *m.tokens.Token()
}

// ExpiresWithin reports whether the token is missing or expires within d.
func (m *ConfigTokenManager) ExpiresWithin(d time.Duration) bool {
	token := m.tokens.Token()
	if token == nil {
		return true
	}

	if token.ExpiresAt.IsZero() {
		return false
	}

	return time.Now().Add(d).After(token.ExpiresAt)
}

// Expiry returns the current token's expiry, zero when unknown.
func (m *ConfigTokenManager) Expiry() time.Time {
	token := m.tokens.Token()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}

// Wait blocks until background saves have finished.
func (m *ConfigTokenManager) Wait() {
	m.saves.Wait()
}

// unsaved returns the current token when it differs from the last saved one
// and marks it saved. Callers hold m.mu.
func (m *ConfigTokenManager) unsaved() (Token, bool) {
	current := m.tokens.Token()
	if current == nil {
		return Token{}, false
	}

	if current.AccessToken == m.saved.AccessToken &&
		current.RefreshToken == m.saved.RefreshToken &&
		current.ExpiresAt.Equal(m.saved.ExpiresAt) {
		return Token{}, false
	}

	m.saved = *current

	return *current, true
}

// save writes token for the tenant. Failures are logged; requests never fail on them.
func (m *ConfigTokenManager) save(token Token) {
	err := m.persist(token)
	if err != nil {
		m.logger.Warn("failed to save renewed token", map[string]interface{}{
			"api":   m.tenant,
			"error": err.Error(),
		})

		return
	}

	m.logger.Debug("saved renewed token", map[string]interface{}{
		"api":        m.tenant,
		"expires_at": token.ExpiresAt,
	})
}

func (m *ConfigTokenManager) persist(token Token) error {
	if m.persister == nil {
		return ErrNoConfigPersister
	}

	err := m.persister.UpdateAPIToken(m.tenant, token.AccessToken, token.ExpiresAt, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("updating token for %s: %w", m.tenant, err)
	}

	return nil
}
