//go:build integration

package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service"
	"github.com/guttosm/offline-sync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mongoStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := repository.NewMongoDB(testutil.MongoURI(t), testutil.DatabaseName(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Database.Drop(context.Background())
		_ = db.Close(context.Background())
	})
	return repository.NewMongoStore(db)
}

func TestGateway_MongoOfflineRoundTrip(t *testing.T) {
	g := newTestGatewayWithStore(t, todoAPI(), true, mongoStore(t))

	require.Equal(t, http.StatusOK, g.do(http.MethodGet, "/api/todos", nil, nil).Code)

	require.True(t, g.engine.Monitor.SetOnline(false))
	g.upstream.Close()

	cached := g.do(http.MethodGet, "/api/todos", nil, nil)
	require.Equal(t, http.StatusOK, cached.Code)
	assert.Equal(t, "cache", cached.Header().Get(service.HeaderOfflineFallback))

	queued := g.do(http.MethodPost, "/api/todos", []byte(`{"title":"x"}`),
		map[string]string{"Content-Type": "application/json", "Idempotency-Key": "mongo-k1"})
	require.Equal(t, http.StatusAccepted, queued.Code)

	again := g.do(http.MethodPost, "/api/todos", []byte(`{"title":"x"}`),
		map[string]string{"Content-Type": "application/json", "Idempotency-Key": "mongo-k1"})
	require.Equal(t, http.StatusAccepted, again.Code)
	assert.Equal(t, queued.Header().Get(service.HeaderOfflineActionID), again.Header().Get(service.HeaderOfflineActionID))

	stats, err := g.engine.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CachedItems)
	assert.Equal(t, int64(1), stats.PendingActions)

	ready := g.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, ready.Code)

	actions, err := g.engine.Queue.List(t.Context(), model.StatusPending)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "mongo-k1", actions[0].IdempotencyKey)
}
