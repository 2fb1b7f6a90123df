//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMongo(t *testing.T) Store {
	return NewMongoStore(setupTestDBFromSharedContainer(t))
}

func TestMongoDB_Integration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBFromSharedContainer(t)

	t.Run("collections wired", func(t *testing.T) {
		assert.NotNil(t, db.CacheEntries)
		assert.NotNil(t, db.Actions)
		assert.NotNil(t, db.Counters)
	})

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, db.HealthCheck(ctx))
	})

	t.Run("sequence counter increments", func(t *testing.T) {
		first, err := db.nextSeq(ctx, "test")
		require.NoError(t, err)
		second, err := db.nextSeq(ctx, "test")
		require.NoError(t, err)
		assert.Equal(t, first+1, second)
	})
}

func TestMongoStore_Cache(t *testing.T) {
	runCacheContract(t, newMongo)
}

func TestMongoStore_Queue(t *testing.T) {
	runQueueContract(t, newMongo)
}
