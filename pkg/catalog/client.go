package catalog

import (
	"context"
	"time"
)

// Client is a tenant-scoped catalog client.
type Client interface {
	// Cache returns the name/id resolution caches of this tenant.
	Cache() *TenantCache

	// Search returns the search facade of this tenant.
	Search() *Searcher

	// GetToken returns the current access token.
	GetToken(ctx context.Context) (string, error)

	// Close clears every cache. The client must not be used afterwards.
	Close() error
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]interface{}) {}
func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}

// Config represents client configuration for building a catalog.Client.
//
// # Authentication precedence
//
//  1. APIToken: used directly as a static Bearer token.
//  2. ClientID/ClientSecret: OAuth2 client_credentials grant against TokenURL
//     (defaults to "<APIEndpoint>/auth/realms/default/protocol/openid-connect/token").
//  3. No credentials: requests are sent without authentication.
//
// # Timeouts, retries and rate limits
//
// Per-request timeouts should generally be controlled via context. Retry
// behavior is tuned via RetryMax/RetryWaitMin/RetryWaitMax; the delay between
// retries follows the same WaitPolicy the caches use. RateLimit/RateBurst
// bound the client-side request rate.
type Config struct {
	// APIEndpoint: base URL of the tenant (e.g., "https://tenant.example.com").
	APIEndpoint string
	// Tenant: logical tenant name used to namespace shared cache snapshots.
	// Defaults to the endpoint host.
	Tenant string

	// APIToken: static bearer token.
	APIToken string
	// ClientID: OAuth2 client ID for the client_credentials grant.
	ClientID string
	// ClientSecret: OAuth2 client secret used with ClientID.
	ClientSecret string
	// TokenURL: full OAuth2 token endpoint.
	TokenURL string

	// HTTPTimeout: default HTTP timeout.
	HTTPTimeout time.Duration
	// RetryMax: maximum number of retries for transient failures. 0 uses the default.
	RetryMax int
	// RetryWaitMin: first backoff between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration
	// RateLimit: requests per second; 0 uses the default, negative disables limiting.
	RateLimit float64
	// RateBurst: burst size of the rate limiter.
	RateBurst int

	// PageSize: default search page size.
	PageSize int64
	// CacheMaxAttempts: how often WaitForName reloads a category before giving up.
	CacheMaxAttempts int
	// Snapshot: optional shared snapshot store for cache warm starts.
	Snapshot *SnapshotStoreConfig

	// Debug: enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger.
	Logger Logger
	// UserAgent: overrides the default User-Agent header.
	UserAgent string
}
