package constants

import "errors"

// API and configuration errors.
var (
	ErrNoAPIsConfigured    = errors.New("no APIs configured, use 'catalog login' to add one")
	ErrNoDomainForAPI      = errors.New("could not determine API domain")
	ErrNoRefreshToken      = errors.New("no refresh token available for this API, please run 'catalog login' again")
	ErrFailedRetrieveToken = errors.New("failed to retrieve refreshed token")
	ErrAPIConfigNotFound   = errors.New("API configuration not found")
)

// Validation errors.
var (
	ErrInvalidOutputFormat = errors.New("invalid output format, expected table, json or yaml")
	ErrInvalidQuery        = errors.New("query must be a JSON object")
	ErrCategoryRequired    = errors.New("category is required")
)
