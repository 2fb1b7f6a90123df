package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyCache_GetSet(t *testing.T) {
	c := newIdempotencyCache(time.Minute)
	t.Cleanup(c.Stop)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, &cachedResponse{StatusCode: http.StatusCreated, Body: []byte(`{}`)})
	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, http.StatusCreated, got.StatusCode)
	assert.False(t, got.Timestamp.IsZero())
}

func TestIdempotencyCache_Expiry(t *testing.T) {
	c := newIdempotencyCache(time.Minute)
	t.Cleanup(c.Stop)

	c.Set(7, &cachedResponse{StatusCode: http.StatusOK})
	c.mu.Lock()
	c.items[7].Timestamp = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()

	_, ok := c.Get(7)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.cleanup()
	assert.Equal(t, 0, c.Len())
}

func TestIdempotencyCache_StopTwice(t *testing.T) {
	c := newIdempotencyCache(time.Minute)
	assert.NotPanics(t, func() {
		c.Stop()
		c.Stop()
	})
}
