package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// NetworkError reports that the remote API could not be reached: a transport
// failure, a timeout, or an open circuit breaker.
type NetworkError struct {
	Op      string
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	kind := "connection failed"
	if e.Timeout {
		kind = "timed out"
	}
	return fmt.Sprintf("remote %s %s: %s: %v", e.Op, e.URL, kind, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteRejection is a response the remote API sent back with a non-2xx status.
type RemoteRejection struct {
	Status int
	Body   []byte
}

func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("remote rejected request with status %d", e.Status)
}

// Retryable reports whether a later attempt may succeed.
func (e *RemoteRejection) Retryable() bool {
	switch {
	case e.Status >= http.StatusInternalServerError:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// IsNetworkError reports whether err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsConnectionLoss reports whether err means the remote is unreachable, as
// opposed to merely slow.
func IsConnectionLoss(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && !ne.Timeout
}

// IsRetryable reports whether an action that failed with err should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) {
		return true
	}
	var rej *RemoteRejection
	if errors.As(err, &rej) {
		return rej.Retryable()
	}
	return false
}

// StatusOf returns the HTTP status carried by a *RemoteRejection, or 0.
func StatusOf(err error) int {
	var rej *RemoteRejection
	if errors.As(err, &rej) {
		return rej.Status
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
