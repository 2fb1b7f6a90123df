package i18n

// Error message translation keys.
const (
	ErrKeyInvalidRequest    = "error.invalid_request"
	ErrKeyInternalError     = "error.internal_error"
	ErrKeyNotFound          = "error.not_found"
	ErrKeyConflict          = "error.conflict"
	ErrKeyRateLimitExceeded = "error.rate_limit_exceeded"
	ErrKeyTimeout           = "error.timeout"
	// ErrKeyOffline is returned when the remote is unreachable and nothing is cached.
	ErrKeyOffline         = "error.offline"
	ErrKeyStorage         = "error.storage"
	ErrKeyPayloadTooLarge = "error.payload_too_large"
)
