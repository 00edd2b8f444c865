package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/fivetwenty-io/catalog-client/internal/auth"
	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/internal/http"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// Static errors for err113 compliance.
var (
	ErrNoTokenManagerConfigured = errors.New("no token manager configured")
)

// Client implements the catalog.Client interface.
type Client struct {
	httpClient   *http.Client
	tokenManager auth.TokenManager
	baseURL      string
	tenant       string
	logger       catalog.Logger

	store    catalog.SnapshotStore
	cache    *catalog.TenantCache
	searcher *catalog.Searcher
}

// createTokenManager creates the token manager matching the configured credentials.
func createTokenManager(config *catalog.Config) auth.TokenManager {
	if config.APIToken != "" {
		return auth.NewStaticTokenManager(config.APIToken)
	}

	if config.ClientID != "" && config.ClientSecret != "" {
		return auth.NewOAuth2TokenManager(&auth.OAuth2Config{
			TokenURL:     getTokenURL(config),
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
		})
	}

	return nil // No authentication
}

// getTokenURL returns the configured token URL or the default realm endpoint.
func getTokenURL(config *catalog.Config) string {
	if config.TokenURL != "" {
		return config.TokenURL
	}

	return auth.RealmTokenURL(config.APIEndpoint)
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *catalog.Config) []http.Option {
	var httpOpts []http.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.ExtendedRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	switch {
	case config.RateLimit < 0:
		httpOpts = append(httpOpts, http.WithRateLimit(0, 0))
	case config.RateLimit > 0:
		httpOpts = append(httpOpts, http.WithRateLimit(config.RateLimit, config.RateBurst))
	default:
		httpOpts = append(httpOpts, http.WithRateLimit(constants.DefaultRateLimit, constants.DefaultRateBurst))
	}

	return httpOpts
}

// New creates a catalog client for one tenant.
func New(_ context.Context, config *catalog.Config) (*Client, error) {
	if config == nil {
		return nil, catalog.ErrConfigRequired
	}

	return NewWithTokenManager(config, createTokenManager(config))
}

// NewWithTokenManager creates a catalog client with a custom token manager.
// tokenManager may be nil for unauthenticated endpoints.
func NewWithTokenManager(config *catalog.Config, tokenManager auth.TokenManager) (*Client, error) {
	if config == nil {
		return nil, catalog.ErrConfigRequired
	}

	if config.APIEndpoint == "" {
		return nil, catalog.ErrAPIEndpointRequired
	}

	logger := config.Logger
	if logger == nil {
		logger = catalog.NopLogger{}
	}

	// A nil interface must stay nil; a typed nil would be called.
	var httpTokens http.TokenManager
	if tokenManager != nil {
		httpTokens = tokenManager
	}

	httpClient := http.NewClient(config.APIEndpoint, httpTokens, createHTTPClientOptions(config)...)

	store, err := catalog.NewSnapshotStoreFromConfig(config.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot store: %w", err)
	}

	tenant := config.Tenant
	if tenant == "" {
		tenant = tenantFromEndpoint(config.APIEndpoint)
	}

	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}

	fetcher := NewIndexSearchFetcher(httpClient)

	cacheOpts := []catalog.CacheOption{
		catalog.WithTenant(tenant),
		catalog.WithSnapshotStore(store),
		catalog.WithCacheLogger(logger),
	}

	if config.CacheMaxAttempts > 0 {
		cacheOpts = append(cacheOpts, catalog.WithMaxAttempts(config.CacheMaxAttempts))
	}

	client := &Client{
		httpClient:   httpClient,
		tokenManager: tokenManager,
		baseURL:      httpClient.BaseURL(),
		tenant:       tenant,
		logger:       logger,
		store:        store,
		cache:        catalog.NewTenantCache(NewResolverTable(httpClient, fetcher, constants.ListingPageSize), cacheOpts...),
		searcher: catalog.NewSearcher(fetcher,
			catalog.WithDefaultPageSize(pageSize),
			catalog.WithSearchLogger(logger),
		),
	}

	logger.Debug("catalog client created", map[string]interface{}{
		"endpoint": client.baseURL,
		"tenant":   tenant,
	})

	return client, nil
}

// tenantFromEndpoint names a tenant after the host of its endpoint.
func tenantFromEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}

	return parsed.Hostname()
}

// Cache implements catalog.Client.Cache.
func (c *Client) Cache() *catalog.TenantCache {
	return c.cache
}

// Search implements catalog.Client.Search.
func (c *Client) Search() *catalog.Searcher {
	return c.searcher
}

// Tenant returns the tenant name used to namespace snapshots.
func (c *Client) Tenant() string {
	return c.tenant
}

// BaseURL returns the API endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetTokenManager returns the token manager for this client.
func (c *Client) GetTokenManager() auth.TokenManager {
	return c.tokenManager
}

// GetToken implements catalog.Client.GetToken.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", ErrNoTokenManagerConfigured
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	return token, nil
}

// Close implements catalog.Client.Close. It clears the caches and releases
// the snapshot store.
func (c *Client) Close() error {
	cacheErr := c.cache.Close()

	var storeErr error
	if closer, ok := c.store.(io.Closer); ok {
		storeErr = closer.Close()
	}

	return errors.Join(cacheErr, storeErr)
}
