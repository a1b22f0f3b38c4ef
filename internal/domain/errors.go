package domain

import "errors"

// Error taxonomy for the bridge. Every error that reaches the API
// boundary wraps exactly one of these sentinels.
var (
	// ErrInvalidIdentifier indicates a session ID that fails the
	// charset or length rule. Client error, never retried.
	ErrInvalidIdentifier = errors.New("invalid session identifier")

	// ErrInvalidMessage indicates a message body outside the allowed
	// length bounds after sanitization. Client error, never retried.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrSessionInvalid indicates an operation that requires a live
	// session was attempted against a missing or expired one.
	ErrSessionInvalid = errors.New("invalid or expired session")

	// ErrRateLimited indicates the governor denied admission. The
	// caller may retry after the advertised window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrStorageUnavailable indicates the persistent store failed.
	// Surfaced as a server error; the rate governor instead fails open.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnauthorized indicates a missing or wrong bearer credential.
	ErrUnauthorized = errors.New("unauthorized")
)
