// Package dto contains the JSON shapes exchanged with gateway clients.
package dto

import (
	"net/http"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
)

const (
	// ErrCodeInvalidRequest indicates an invalid request.
	ErrCodeInvalidRequest = "invalid_request"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound = "not_found"
	// ErrCodeRateLimit indicates rate limit exceeded.
	ErrCodeRateLimit = "rate_limit_exceeded"
	// ErrCodeConflict indicates a conflict with current state.
	ErrCodeConflict = "conflict"
	// ErrCodeTimeout indicates a request timeout.
	ErrCodeTimeout = "timeout"
	// ErrCodeOffline indicates the remote API was unreachable and nothing was cached.
	ErrCodeOffline = "offline"
	// ErrCodeStorage indicates the local store failed.
	ErrCodeStorage = "storage_error"
)

// QueuedMessage is the message returned with every queued-write acknowledgement.
const QueuedMessage = "You are offline. The change was saved and will sync when the connection is restored."

// QueuedAck is the body of the synthetic 202 returned for a queued mutation.
// @Description Acknowledgement of a write queued for later replay
type QueuedAck struct {
	Offline bool   `json:"offline" example:"true"`
	Queued  bool   `json:"queued" example:"true"`
	Message string `json:"message"`
} // @name QueuedAck

// NewQueuedAck returns the fixed acknowledgement body.
func NewQueuedAck() QueuedAck {
	return QueuedAck{Offline: true, Queued: true, Message: QueuedMessage}
}

// ErrorResponse represents a standardized error response for the gateway.
// @Description Standardized error response
type ErrorResponse struct {
	Error     string            `json:"error" example:"offline"`
	Message   string            `json:"message,omitempty" example:"remote API unreachable and no cached copy"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
	Timestamp time.Time         `json:"timestamp" example:"2025-01-28T10:00:00Z"`
} // @name ErrorResponse

// NewError creates a new ErrorResponse with the given code and message.
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithRequestID adds a request ID to the error response.
func (e ErrorResponse) WithRequestID(requestID string) ErrorResponse {
	e.RequestID = requestID
	return e
}

// ErrCodeFromStatus returns the appropriate error code for an HTTP status.
func ErrCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeInvalidRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// ActionList wraps a list of queued actions.
// @Description Queued actions in enqueue order
type ActionList struct {
	Actions []model.QueuedAction `json:"actions"`
	Count   int                  `json:"count"`
} // @name ActionList

// PartitionKeys lists the cache keys of one partition.
// @Description Keys stored in a cache partition
type PartitionKeys struct {
	Partition string   `json:"partition" example:"data"`
	Keys      []string `json:"keys"`
} // @name PartitionKeys

// ConnectivityRequest is the body of a platform connectivity signal.
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
} // @name ConnectivityRequest

// ConnectivityResponse reports the current connectivity flag.
type ConnectivityResponse struct {
	Online  bool `json:"online"`
	Changed bool `json:"changed"`
} // @name ConnectivityResponse

// SyncResponse reports whether a requested reconciliation pass was started.
type SyncResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
} // @name SyncResponse
