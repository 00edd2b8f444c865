// Package catalogclient provides the main entry point for creating metadata catalog clients
package catalogclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/catalog-client/internal/client"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// New creates a catalog client for the tenant at config.APIEndpoint.
// The config is copied; the caller's value is not modified.
func New(ctx context.Context, config *catalog.Config) (catalog.Client, error) {
	if config == nil {
		return nil, catalog.ErrConfigRequired
	}

	if config.APIEndpoint == "" {
		return nil, catalog.ErrAPIEndpointRequired
	}

	normalized := *config
	normalized.APIEndpoint = NormalizeEndpoint(config.APIEndpoint)

	c, err := client.New(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// NormalizeEndpoint trims trailing slashes and defaults the scheme to https.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// NewWithEndpoint creates a new client with just an API endpoint (no auth).
func NewWithEndpoint(ctx context.Context, endpoint string) (catalog.Client, error) {
	return New(ctx, &catalog.Config{
		APIEndpoint: endpoint,
	})
}

// NewWithToken creates a new client with an API endpoint and API token.
func NewWithToken(ctx context.Context, endpoint, token string) (catalog.Client, error) {
	return New(ctx, &catalog.Config{
		APIEndpoint: endpoint,
		APIToken:    token,
	})
}

// NewWithClientCredentials creates a new client using OAuth2 client credentials
// against the tenant's default identity realm.
func NewWithClientCredentials(ctx context.Context, endpoint, clientID, clientSecret string) (catalog.Client, error) {
	return New(ctx, &catalog.Config{
		APIEndpoint:  endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

// Ping checks connectivity and credentials by loading the role cache, the
// smallest listing every tenant serves.
func Ping(ctx context.Context, c catalog.Client) error {
	err := c.Cache().Refresh(ctx, catalog.CategoryRole)
	if err != nil {
		return fmt.Errorf("checking catalog access: %w", err)
	}

	return nil
}
