package service

import (
	"errors"
	"fmt"

	"github.com/guttosm/offline-sync/internal/repository"
)

var (
	// ErrCacheMiss matches any *CacheMissError via errors.Is.
	ErrCacheMiss = errors.New("cache miss")
	// ErrPassInProgress is returned when a sync pass is requested while one is running.
	ErrPassInProgress = errors.New("sync pass already in progress")
	// ErrUnknownPartition is returned for a partition name with no policy.
	ErrUnknownPartition = errors.New("unknown cache partition")
	// ErrInvalidTransition is returned when an action cannot move to the requested status.
	ErrInvalidTransition = errors.New("invalid action status transition")
	// ErrUnresolvedTempID is returned when a temp id cannot be mapped to a server id.
	ErrUnresolvedTempID = errors.New("temp id does not belong to a synced entity")
)

// CacheMissError reports that no usable cached response exists for Key.
// Err carries the network failure that made the cache necessary, if any.
type CacheMissError struct {
	Key string
	Err error
}

func (e *CacheMissError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no cached response for %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("no cached response for %s", e.Key)
}

func (e *CacheMissError) Unwrap() error { return e.Err }

func (e *CacheMissError) Is(target error) bool { return target == ErrCacheMiss }

// StorageError reports that the durable store failed an operation. The
// operation is abandoned; nothing is retried automatically.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// storageErr wraps adapter failures. Not-found results pass through untouched
// so callers can keep matching repository.ErrNotFound.
func storageErr(op string, err error) error {
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
