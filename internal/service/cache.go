// Package service implements the offline sync engine: cache store, mutation
// queue, connectivity monitor, request interceptor, reconciler and janitor.
package service

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/service/cache"
)

// ShardedCache is the in-process hot tier in front of the durable cache.
// It distributes entries across multiple shards to reduce lock contention.
type ShardedCache struct {
	shards    []*ttlCache
	numShards int
	shardMask uint64
}

// NewShardedCache creates a new sharded cache with the specified total capacity,
// TTL, and number of shards. numShards is rounded up to a power of 2.
func NewShardedCache(capacity int, ttl time.Duration, numShards int) *ShardedCache {
	if numShards <= 0 {
		numShards = 16
	}
	n := 1
	for n < numShards {
		n *= 2
	}
	numShards = n

	perShardCapacity := capacity / numShards
	if perShardCapacity < 1 {
		perShardCapacity = 1
	}

	shards := make([]*ttlCache, numShards)
	for i := range shards {
		shards[i] = newTTLCache(perShardCapacity, ttl)
	}

	return &ShardedCache{
		shards:    shards,
		numShards: numShards,
		shardMask: uint64(numShards - 1),
	}
}

func (sc *ShardedCache) getShard(key string) *ttlCache {
	return sc.shards[xxhash.Sum64String(key)&sc.shardMask]
}

// Get retrieves a copy of the entry stored under key.
func (sc *ShardedCache) Get(key string) (*model.CacheEntry, bool) {
	return sc.getShard(key).Get(key)
}

// Set stores a copy of value.
func (sc *ShardedCache) Set(key string, value *model.CacheEntry) {
	sc.getShard(key).Set(key, value)
	sc.publish()
}

// Invalidate removes a key from the appropriate shard.
func (sc *ShardedCache) Invalidate(key string) {
	sc.getShard(key).Invalidate(key)
}

// InvalidatePrefix removes every key starting with prefix from all shards.
func (sc *ShardedCache) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, shard := range sc.shards {
		removed += shard.InvalidatePrefix(prefix)
	}
	sc.publish()
	return removed
}

// Clear removes all entries from all shards.
func (sc *ShardedCache) Clear() {
	for _, shard := range sc.shards {
		shard.Clear()
	}
	sc.publish()
}

// Stop gracefully shuts down all shards.
func (sc *ShardedCache) Stop() {
	for _, shard := range sc.shards {
		shard.Stop()
	}
}

// Metrics returns aggregated metrics from all shards.
func (sc *ShardedCache) Metrics() cache.Metrics {
	var total cache.Metrics
	for _, shard := range sc.shards {
		m := shard.Metrics()
		total.Hits += m.Hits
		total.Misses += m.Misses
		total.Evictions += m.Evictions
		total.Size += m.Size
		total.Capacity += m.Capacity
	}
	return total
}

func (sc *ShardedCache) publish() {
	m := sc.Metrics()
	metrics.UpdateHotCacheMetrics(m.Size, m.Capacity)
}

// ttlCache provides thread-safe LRU caching with TTL expiration.
type ttlCache struct {
	mu        sync.RWMutex
	capacity  int
	ttl       time.Duration
	items     map[string]*hotEntry
	head      *hotEntry
	tail      *hotEntry
	stopCh    chan struct{}
	stopOnce  sync.Once
	hits      int64
	misses    int64
	evictions int64
	now       func() time.Time
}

type hotEntry struct {
	key       string
	value     *model.CacheEntry
	expiresAt time.Time
	prev      *hotEntry
	next      *hotEntry
}

// newTTLCache creates a TTL-based LRU cache. A background goroutine
// periodically drops expired entries until Stop is called.
func newTTLCache(capacity int, ttl time.Duration) *ttlCache {
	c := &ttlCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*hotEntry, capacity),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
	go c.startCleanup()
	return c
}

// Stop gracefully shuts down the cache and cleans up resources.
func (c *ttlCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Metrics returns current cache performance metrics.
func (c *ttlCache) Metrics() cache.Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return cache.Metrics{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      len(c.items),
		Capacity:  c.capacity,
	}
}

// Get retrieves a copy of a value if it exists and hasn't expired.
func (c *ttlCache) Get(key string) (*model.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.removeEntry(entry)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.moveToFront(entry)
	atomic.AddInt64(&c.hits, 1)
	return entry.value.Clone(), true
}

// Set adds or updates a value with the configured TTL, evicting the least
// recently used entry when the cache is full.
func (c *ttlCache) Set(key string, value *model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := value.Clone()
	if entry, ok := c.items[key]; ok {
		entry.value = stored
		entry.expiresAt = c.now().Add(c.ttl)
		c.moveToFront(entry)
		return
	}

	entry := &hotEntry{
		key:       key,
		value:     stored,
		expiresAt: c.now().Add(c.ttl),
	}
	c.items[key] = entry
	c.addToFront(entry)

	if len(c.items) > c.capacity {
		c.removeTail()
		atomic.AddInt64(&c.evictions, 1)
	}
}

// startCleanup runs the background expiry loop.
func (c *ttlCache) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes all expired entries from the cache.
func (c *ttlCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentTime := c.now()
	for _, entry := range c.items {
		if currentTime.After(entry.expiresAt) {
			c.removeEntry(entry)
		}
	}
}

func (c *ttlCache) removeEntry(entry *hotEntry) {
	delete(c.items, entry.key)
	c.remove(entry)
}

func (c *ttlCache) moveToFront(entry *hotEntry) {
	if entry == c.head {
		return
	}
	c.remove(entry)
	c.addToFront(entry)
}

func (c *ttlCache) addToFront(entry *hotEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

// remove unlinks an entry without touching the map.
func (c *ttlCache) remove(entry *hotEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

func (c *ttlCache) removeTail() {
	if c.tail == nil {
		return
	}
	tail := c.tail
	delete(c.items, tail.key)
	c.remove(tail)
}

// Invalidate removes a specific key from the cache.
func (c *ttlCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		c.removeEntry(entry)
	}
}

// InvalidatePrefix removes every key starting with prefix.
func (c *ttlCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(entry)
			removed++
		}
	}
	return removed
}

// Clear removes all entries and resets the counters.
func (c *ttlCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*hotEntry, c.capacity)
	c.head = nil
	c.tail = nil

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

var _ cache.CacheWithMetrics = (*ShardedCache)(nil)
