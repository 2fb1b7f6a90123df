//go:build integration

package app

import (
	"context"
	"testing"

	"github.com/guttosm/offline-sync/config"
	"github.com/guttosm/offline-sync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_MongoDB(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, config.StorageConfig{
		Driver:        config.StorageMongoDB,
		MongoURI:      testutil.MongoURI(t),
		MongoDatabase: testutil.DatabaseName(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	assert.Equal(t, "mongodb", store.Name())
	assert.NoError(t, store.HealthCheck(ctx))
}

func TestOpenStore_MongoDBUnreachable(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StorageConfig{
		Driver:        config.StorageMongoDB,
		MongoURI:      "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200",
		MongoDatabase: "offline_sync",
	})
	assert.Error(t, err)
}
