package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSQLiteStore_Cache(t *testing.T) {
	runCacheContract(t, newSQLite)
}

func TestSQLiteStore_Queue(t *testing.T) {
	runQueueContract(t, newSQLite)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.Error(t, err)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offline.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.InsertAction(ctx, newAction("a1", "items", "k1")))
	require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionPrecache, "app.js", baseTime)))
	require.NoError(t, s.Close(ctx))

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close(ctx) }()

	a, err := reopened.GetAction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, int64(1), a.Seq)

	next := newAction("a2", "items", "k2")
	require.NoError(t, reopened.InsertAction(ctx, next))
	assert.Greater(t, next.Seq, a.Seq)

	keys, err := reopened.ListKeys(ctx, model.PartitionPrecache)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js"}, keys)

	require.NoError(t, reopened.HealthCheck(ctx))
	assert.Equal(t, "sqlite", reopened.Name())
}
