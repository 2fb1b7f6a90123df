// Package cache defines the in-process hot tier that sits in front of the
// durable cache repository.
package cache

import "github.com/guttosm/offline-sync/internal/domain/model"

// Cache defines the interface for hot tier operations. Values are immutable
// copies: callers never share header maps or body buffers with the cache.
type Cache interface {
	Get(key string) (*model.CacheEntry, bool)
	Set(key string, value *model.CacheEntry)
	Invalidate(key string)
	// InvalidatePrefix removes every key starting with prefix and returns how many were dropped.
	InvalidatePrefix(prefix string) int
	Clear()
	Stop()
}

// Metrics provides cache performance metrics.
type Metrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	Capacity  int
}

// CacheWithMetrics extends Cache with metrics reporting.
type CacheWithMetrics interface {
	Cache
	Metrics() Metrics
}
