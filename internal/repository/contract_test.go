package repository

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Adapters persist times with millisecond precision.
var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEntry(partition, key string, storedAt time.Time) *model.CacheEntry {
	return &model.CacheEntry{
		Partition: partition,
		Key:       key,
		Method:    http.MethodGet,
		URL:       "http://remote.test/" + key,
		Status:    http.StatusOK,
		Header:    http.Header{"Content-Type": []string{"application/json"}},
		Body:      []byte(`{"key":"` + key + `"}`),
		StoredAt:  storedAt,
	}
}

func newAction(id, kind, idempotencyKey string) *model.QueuedAction {
	return &model.QueuedAction{
		ID:             id,
		Type:           model.ActionCreate,
		Kind:           kind,
		TempID:         "tmp-" + id,
		Method:         http.MethodPost,
		Path:           "/api/" + kind,
		Header:         http.Header{"Content-Type": []string{"application/json"}},
		Payload:        []byte(`{"name":"` + id + `"}`),
		IdempotencyKey: idempotencyKey,
		Status:         model.StatusPending,
		MaxRetries:     5,
		EnqueuedAt:     baseTime,
		UpdatedAt:      baseTime,
	}
}

func runCacheContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put get supersede delete", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetEntry(ctx, model.PartitionData, "GET http://remote.test/api/items")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionData, "a", baseTime)))
		got, err := s.GetEntry(ctx, model.PartitionData, "a")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, got.Status)
		assert.Equal(t, `{"key":"a"}`, string(got.Body))
		assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
		assert.True(t, got.StoredAt.Equal(baseTime))
		assert.True(t, got.ExpiresAt.IsZero())

		newer := newEntry(model.PartitionData, "a", baseTime.Add(time.Minute))
		newer.Body = []byte(`{"v":2}`)
		require.NoError(t, s.PutEntry(ctx, newer))
		got, err = s.GetEntry(ctx, model.PartitionData, "a")
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(got.Body))

		_, err = s.GetEntry(ctx, model.PartitionImage, "a")
		assert.ErrorIs(t, err, ErrNotFound, "partitions are isolated")

		require.NoError(t, s.DeleteEntry(ctx, model.PartitionData, "a"))
		require.NoError(t, s.DeleteEntry(ctx, model.PartitionData, "a"))
		_, err = s.GetEntry(ctx, model.PartitionData, "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list clear usage", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionRuntime, k, baseTime)))
		}
		require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionImage, "logo", baseTime)))

		keys, err := s.ListKeys(ctx, model.PartitionRuntime)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys)

		usage, err := s.Usage(ctx)
		require.NoError(t, err)
		require.Len(t, usage, 2)
		assert.Equal(t, model.PartitionImage, usage[0].Partition)
		assert.Equal(t, int64(1), usage[0].Entries)
		assert.Equal(t, int64(3), usage[1].Entries)
		assert.Positive(t, usage[1].Bytes)

		n, err := s.ClearPartition(ctx, model.PartitionRuntime)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		keys, err = s.ListKeys(ctx, model.PartitionRuntime)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("delete expired", func(t *testing.T) {
		s := newStore(t)
		now := baseTime.Add(8 * 24 * time.Hour)

		require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionData, "old", baseTime)))
		require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionData, "fresh", now.Add(-time.Hour))))
		explicit := newEntry(model.PartitionData, "explicit", now.Add(-time.Hour))
		explicit.ExpiresAt = now.Add(-time.Minute)
		require.NoError(t, s.PutEntry(ctx, explicit))

		n, err := s.DeleteExpired(ctx, model.PartitionData, now.Add(-7*24*time.Hour), now)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		keys, err := s.ListKeys(ctx, model.PartitionData)
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, keys)
	})

	t.Run("trim keeps newest", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			key := fmt.Sprintf("img-%d", i)
			require.NoError(t, s.PutEntry(ctx, newEntry(model.PartitionImage, key, baseTime.Add(time.Duration(i)*time.Minute))))
		}

		n, err := s.TrimPartition(ctx, model.PartitionImage, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		keys, err := s.ListKeys(ctx, model.PartitionImage)
		require.NoError(t, err)
		assert.Equal(t, []string{"img-2", "img-3", "img-4"}, keys)

		n, err = s.TrimPartition(ctx, model.PartitionImage, 3)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func runQueueContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert assigns increasing seq", func(t *testing.T) {
		s := newStore(t)
		a1 := newAction("a1", "items", "k1")
		a2 := newAction("a2", "items", "k2")
		a3 := newAction("a3", "loans", "")

		require.NoError(t, s.InsertAction(ctx, a1))
		require.NoError(t, s.InsertAction(ctx, a2))
		require.NoError(t, s.InsertAction(ctx, a3))
		assert.Less(t, a1.Seq, a2.Seq)
		assert.Less(t, a2.Seq, a3.Seq)

		list, err := s.ListActions(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"a1", "a2", "a3"}, []string{list[0].ID, list[1].ID, list[2].ID})
		assert.Equal(t, `{"name":"a1"}`, string(list[0].Payload))
		assert.Equal(t, "application/json", list[0].Header.Get("Content-Type"))
		assert.True(t, list[0].EnqueuedAt.Equal(baseTime))
	})

	t.Run("idempotency key is unique", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InsertAction(ctx, newAction("a1", "items", "same")))
		err := s.InsertAction(ctx, newAction("a2", "items", "same"))
		assert.ErrorIs(t, err, ErrDuplicateKey)

		found, err := s.FindByIdempotencyKey(ctx, "same")
		require.NoError(t, err)
		assert.Equal(t, "a1", found.ID)

		_, err = s.FindByIdempotencyKey(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.InsertAction(ctx, newAction("a3", "items", "")))
		require.NoError(t, s.InsertAction(ctx, newAction("a4", "items", "")))
	})

	t.Run("find create by temp id", func(t *testing.T) {
		s := newStore(t)
		create := newAction("c1", "items", "k1")
		require.NoError(t, s.InsertAction(ctx, create))

		update := newAction("u1", "items", "k2")
		update.Type = model.ActionUpdate
		update.TempID = create.TempID
		update.EntityID = create.TempID
		require.NoError(t, s.InsertAction(ctx, update))

		found, err := s.FindByTempID(ctx, create.TempID)
		require.NoError(t, err)
		assert.Equal(t, "c1", found.ID)
		assert.Equal(t, model.ActionCreate, found.Type)

		_, err = s.FindByTempID(ctx, "tmp-missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByTempID(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update keeps seq and filters by status", func(t *testing.T) {
		s := newStore(t)
		a := newAction("a1", "items", "k1")
		require.NoError(t, s.InsertAction(ctx, a))
		require.NoError(t, s.InsertAction(ctx, newAction("a2", "items", "k2")))

		changed := a.Clone()
		changed.Seq = 999
		changed.Status = model.StatusFailed
		changed.RetryCount = 2
		changed.LastError = "boom"
		changed.Terminal = true
		changed.NextAttemptAt = baseTime.Add(time.Minute)
		require.NoError(t, s.UpdateAction(ctx, changed))

		got, err := s.GetAction(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, a.Seq, got.Seq)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, 2, got.RetryCount)
		assert.True(t, got.Terminal)
		assert.Equal(t, "boom", got.LastError)
		assert.True(t, got.NextAttemptAt.Equal(baseTime.Add(time.Minute)))

		failed, err := s.ListActions(ctx, model.StatusFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "a1", failed[0].ID)

		counts, err := s.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[model.StatusPending])
		assert.Equal(t, 1, counts[model.StatusFailed])
		assert.Equal(t, 0, counts[model.StatusCompleted])

		assert.ErrorIs(t, s.UpdateAction(ctx, newAction("ghost", "items", "")), ErrNotFound)
	})

	t.Run("delete and retention", func(t *testing.T) {
		s := newStore(t)
		old := newAction("old", "items", "")
		old.Status = model.StatusCompleted
		old.UpdatedAt = baseTime.Add(-48 * time.Hour)
		recent := newAction("recent", "items", "")
		recent.Status = model.StatusCompleted
		recent.UpdatedAt = baseTime
		pending := newAction("pending", "items", "")
		pending.UpdatedAt = baseTime.Add(-72 * time.Hour)
		for _, a := range []*model.QueuedAction{old, recent, pending} {
			require.NoError(t, s.InsertAction(ctx, a))
		}

		n, err := s.DeleteFinishedBefore(ctx, model.StatusCompleted, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetAction(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.DeleteAction(ctx, "recent"))
		assert.ErrorIs(t, s.DeleteAction(ctx, "recent"), ErrNotFound)

		n, err = s.ClearActions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
