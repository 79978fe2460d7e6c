package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrMalformedResponse   = errors.New("malformed kline response")
	ErrShortPage           = errors.New("kline page has unexpected record count")

	// Pipeline Errors
	ErrNoProgress       = errors.New("no start day configured and no day files present")
	ErrRetriesExhausted = errors.New("day fetch attempts exhausted")
	ErrStorageFailed    = errors.New("day store operation failed")
	ErrJournalFailed    = errors.New("fetch journal operation failed")
	ErrPublishFailed    = errors.New("completion event publish failed")
	ErrCorruptDay       = errors.New("day file content is invalid")
)
