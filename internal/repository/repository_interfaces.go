// Package repository provides the storage ports of the offline sync engine and
// their memory, SQLite and MongoDB adapters.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
)

var (
	// ErrNotFound is returned when a cache entry or action does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when an action reuses an idempotency key already in the queue.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

// CacheRepository persists cached responses grouped by partition.
// Every single-entry operation is atomic with respect to concurrent readers.
type CacheRepository interface {
	// GetEntry returns ErrNotFound when the key is absent.
	GetEntry(ctx context.Context, partition, key string) (*model.CacheEntry, error)
	// PutEntry inserts or supersedes the entry stored under its partition and key.
	PutEntry(ctx context.Context, entry *model.CacheEntry) error
	// DeleteEntry removes an entry; deleting a missing key is not an error.
	DeleteEntry(ctx context.Context, partition, key string) error
	// ListKeys returns the keys of a partition in lexical order.
	ListKeys(ctx context.Context, partition string) ([]string, error)
	ClearPartition(ctx context.Context, partition string) (int, error)
	// DeleteExpired removes entries stored before storedBefore or whose
	// explicit expiry is at or before now.
	DeleteExpired(ctx context.Context, partition string, storedBefore, now time.Time) (int, error)
	// TrimPartition removes the oldest entries until at most max remain.
	TrimPartition(ctx context.Context, partition string, max int) (int, error)
	// Usage reports entry counts and byte sizes for every non-empty partition.
	Usage(ctx context.Context) ([]model.PartitionUsage, error)
}

// QueueRepository persists queued mutations.
type QueueRepository interface {
	// InsertAction stores a new action and assigns its Seq. Returns
	// ErrDuplicateKey when the idempotency key is already queued.
	InsertAction(ctx context.Context, action *model.QueuedAction) error
	GetAction(ctx context.Context, id string) (*model.QueuedAction, error)
	// UpdateAction replaces the stored action with the same ID.
	UpdateAction(ctx context.Context, action *model.QueuedAction) error
	DeleteAction(ctx context.Context, id string) error
	// ListActions returns actions in Seq order, filtered by status when any are given.
	ListActions(ctx context.Context, statuses ...model.ActionStatus) ([]*model.QueuedAction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.QueuedAction, error)
	// FindByTempID returns the CREATE that handed out tempID, in any status.
	FindByTempID(ctx context.Context, tempID string) (*model.QueuedAction, error)
	// DeleteFinishedBefore removes actions in status last updated before cutoff.
	DeleteFinishedBefore(ctx context.Context, status model.ActionStatus, cutoff time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[model.ActionStatus]int, error)
	ClearActions(ctx context.Context) (int, error)
}

// Store is a durable adapter providing both repositories.
type Store interface {
	CacheRepository
	QueueRepository
	// Name identifies the adapter in logs and health checks.
	Name() string
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
