package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// ConfigPersister implements the auth.ConfigPersister interface.
type ConfigPersister struct {
	mutex sync.Mutex
}

// NewConfigPersister creates a new config persister.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{}
}

// UpdateAPIToken writes a renewed token for apiDomain back to the config file.
func (p *ConfigPersister) UpdateAPIToken(apiDomain, token string, expiresAt time.Time, refreshToken string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	apiConfig, exists := config.APIs[apiDomain]
	if !exists {
		return fmt.Errorf("tenant configuration for '%s': %w", apiDomain, constants.ErrAPIConfigNotFound)
	}

	apiConfig.Token = token
	if !expiresAt.IsZero() {
		apiConfig.TokenExpiresAt = &expiresAt
	}

	if refreshToken != "" {
		apiConfig.RefreshToken = refreshToken
	}

	now := time.Now()
	apiConfig.LastRefreshed = &now

	return saveConfigStruct(config)
}
