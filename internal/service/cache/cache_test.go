//go:build !integration

package cache

import (
	"strings"
	"testing"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestCacheWithMetricsInterface(t *testing.T) {
	var c CacheWithMetrics = &mapCache{items: map[string]*model.CacheEntry{}}

	_, found := c.Get("data\x00a")
	assert.False(t, found)

	c.Set("data\x00a", &model.CacheEntry{Key: "a"})
	c.Set("data\x00b", &model.CacheEntry{Key: "b"})
	c.Set("image\x00c", &model.CacheEntry{Key: "c"})

	got, found := c.Get("data\x00a")
	assert.True(t, found)
	assert.Equal(t, "a", got.Key)

	assert.Equal(t, 2, c.InvalidatePrefix("data\x00"))
	assert.Equal(t, Metrics{Size: 1}, c.Metrics())

	c.Clear()
	c.Stop()
	assert.Equal(t, 0, c.Metrics().Size)
}

// mapCache is a minimal implementation of CacheWithMetrics.
type mapCache struct {
	items map[string]*model.CacheEntry
}

func (m *mapCache) Get(key string) (*model.CacheEntry, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *mapCache) Set(key string, value *model.CacheEntry) { m.items[key] = value }

func (m *mapCache) Invalidate(key string) { delete(m.items, key) }

func (m *mapCache) InvalidatePrefix(prefix string) int {
	n := 0
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *mapCache) Clear() { m.items = map[string]*model.CacheEntry{} }

func (m *mapCache) Stop() {}

func (m *mapCache) Metrics() Metrics { return Metrics{Size: len(m.items)} }
