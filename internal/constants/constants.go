package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as login validation.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 5

	// LowRetryMax is used for operations that should retry fewer times.
	LowRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax is used for operations that need longer waits.
	ExtendedRetryWaitMax = 30 * time.Second
)

// Rate limiting.
const (
	// DefaultRateLimit is the default number of requests per second per client.
	DefaultRateLimit = 20.0

	// DefaultRateBurst is the default burst size of the client-side limiter.
	DefaultRateBurst = 10
)

// Backoff tuning.
const (
	// ExponentialBackoffBase is the multiplier for exponential backoff.
	ExponentialBackoffBase = 2

	// DefaultBackoffBase is the first delay of the default wait policy.
	DefaultBackoffBase = 250 * time.Millisecond

	// DefaultJitterFraction is the +/- randomization applied to every delay.
	DefaultJitterFraction = 0.2

	// DefaultCacheMaxAttempts bounds how often a cache lookup waits for a freshly created entity.
	DefaultCacheMaxAttempts = 6

	// TokenExpirationBuffer is the buffer time before token expiration.
	TokenExpirationBuffer = 30 * time.Second
)

// Concurrency limits.
const (
	// DefaultConcurrencyLimit limits concurrent traversal workers.
	DefaultConcurrencyLimit = 4

	// SmallBufferSize is used for page streaming channels.
	SmallBufferSize = 10
)

// Pagination limits.
const (
	// DefaultPageSize is the default number of records per search page.
	DefaultPageSize = 100

	// MaxPageSize is the largest page the search endpoint accepts.
	MaxPageSize = 1000

	// ListingPageSize is the page size used when paging through user and group listings.
	ListingPageSize = 200
)

// API paths.
const (
	// APIPathIndexSearch is the index search endpoint.
	APIPathIndexSearch = "/api/meta/search/indexsearch"

	// APIPathTypeDefs is the type definition listing endpoint.
	APIPathTypeDefs = "/api/meta/types/typedefs"

	// APIPathRoles is the role listing endpoint.
	APIPathRoles = "/api/service/roles"

	// APIPathUsers is the user listing endpoint.
	APIPathUsers = "/api/service/users"

	// APIPathGroups is the group listing endpoint.
	APIPathGroups = "/api/service/groups"
)

// Format constants.
const (
	// FormatJSON selects JSON output.
	FormatJSON = "json"

	// FormatYAML selects YAML output.
	FormatYAML = "yaml"

	// FormatTable selects table output.
	FormatTable = "table"
)

// Display constants.
const (
	// NotAvailable is printed for missing values.
	NotAvailable = "N/A"

	// MaskedSecret replaces secrets in config output.
	MaskedSecret = "***"

	// JSONIndentSize is the indent used for JSON output.
	JSONIndentSize = 2
)

// Snapshot store defaults.
const (
	// DefaultSnapshotBucket is the NATS KV bucket holding cache snapshots.
	DefaultSnapshotBucket = "catalog_cache_snapshots"

	// DefaultSnapshotTTL bounds how long a shared snapshot is kept in NATS KV.
	DefaultSnapshotTTL = 24 * time.Hour
)
