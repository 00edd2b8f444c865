package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures for retry decisions.
type ErrorKind int

const (
	// KindUnknown is any failure that is none of the kinds below.
	KindUnknown ErrorKind = iota
	// KindNotFound means the entity is absent even after an authoritative reload.
	KindNotFound
	// KindTransient covers network failures, throttling and 5xx responses; safe to retry.
	KindTransient
	// KindUnauthorized covers missing or expired credentials.
	KindUnauthorized
	// KindForbidden covers valid credentials lacking permission.
	KindForbidden
	// KindInvalidRequest covers malformed queries and templates.
	KindInvalidRequest
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalidRequest:
		return "invalid-request"
	default:
		return "unknown"
	}
}

// Static errors for err113 compliance.
var (
	ErrNotFound              = errors.New("not found")
	ErrTransient             = errors.New("transient failure")
	ErrUnknownCategory       = errors.New("unknown category")
	ErrNoResolver            = errors.New("no resolver configured for category")
	ErrCacheClosed           = errors.New("cache closed")
	ErrNoMoreItems           = errors.New("no more items")
	ErrInvalidPageSize       = errors.New("page size must be positive")
	ErrInvalidRange          = errors.New("invalid range")
	ErrConfigRequired        = errors.New("config is required")
	ErrAPIEndpointRequired   = errors.New("API endpoint is required")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrNATSConfigRequired    = errors.New("NATS configuration required for NATS snapshot store")
	ErrUnsupportedStoreType  = errors.New("unsupported snapshot store type")
	ErrWaitAttemptsExhausted = errors.New("wait attempts exhausted")
	ErrQueryRequired         = errors.New("search query is required")
)

// NotFoundError reports a lookup that stayed absent after a successful full refresh.
// It is a caller bug (wrong name or id), not worth retrying.
type NotFoundError struct {
	Category Category
	Key      string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found in category %q", e.Key, e.Category)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// APIError is an error response from the catalog service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"errorCode,omitempty"`
	Message    string `json:"errorMessage,omitempty"`
	Cause      string `json:"errorCause,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("catalog API error (status: %d)", e.StatusCode)
	}

	return fmt.Sprintf("%s: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

// Kind classifies the response by status code.
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return KindUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return KindForbidden
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= http.StatusInternalServerError:
		return KindTransient
	case e.StatusCode >= http.StatusBadRequest:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// ParseAPIError builds an APIError from a status code and response body.
// Bodies that are not JSON are kept verbatim as the message.
func ParseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	if len(body) == 0 {
		return apiErr
	}

	err := json.Unmarshal(body, apiErr)
	if err != nil {
		apiErr.Message = string(body)
	}

	return apiErr
}

// KindOf classifies any error returned by this module.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}

	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}

	if errors.Is(err, ErrTransient) {
		return KindTransient
	}

	if errors.Is(err, ErrQueryRequired) || errors.Is(err, ErrInvalidPageSize) || errors.Is(err, ErrInvalidRange) {
		return KindInvalidRequest
	}

	return KindUnknown
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsTransient checks if the error is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsForbidden checks if the error is a forbidden error.
func IsForbidden(err error) bool {
	return KindOf(err) == KindForbidden
}

// IsInvalidRequest checks if the error is a malformed request error.
func IsInvalidRequest(err error) bool {
	return KindOf(err) == KindInvalidRequest
}
