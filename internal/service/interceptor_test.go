package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/dto"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRequest(url string, accept string) *model.Request {
	h := http.Header{}
	if accept != "" {
		h.Set("Accept", accept)
	}
	return &model.Request{Method: http.MethodGet, URL: url, Header: h}
}

func TestInterceptor_APIReadFallsBackToCache(t *testing.T) {
	api := &fakeRemote{}
	e := newTestEngine(t, api)
	ctx := context.Background()

	api.fetch = func(context.Context, *model.Request) (*model.Response, error) {
		return jsonResponse(http.StatusOK, `[{"id":1}]`), nil
	}
	resp, err := e.Handle(ctx, getRequest("/api/items", "application/json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Header.Get(HeaderOfflineFallback))

	api.fetch = nil
	resp, err = e.Handle(ctx, getRequest("/api/items", "application/json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `[{"id":1}]`, string(resp.Body))
	assert.Equal(t, "cache", resp.Header.Get(HeaderOfflineFallback))
}

func TestInterceptor_APIReadMissReturnsNetworkError(t *testing.T) {
	e := newTestEngine(t, &fakeRemote{})

	resp, err := e.Handle(context.Background(), getRequest("/api/items/9", "application/json"))

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	var netErr *remote.NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestInterceptor_APIReadTimeoutUsesCache(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		return jsonResponse(http.StatusOK, `{"v":1}`), nil
	}}
	e := newTestEngine(t, api)
	ctx := context.Background()

	_, err := e.Handle(ctx, getRequest("/api/slow", ""))
	require.NoError(t, err)

	api.fetch = func(ctx context.Context, req *model.Request) (*model.Response, error) {
		<-ctx.Done()
		return nil, &remote.NetworkError{Op: "fetch", URL: req.URL, Timeout: true, Err: ctx.Err()}
	}
	start := time.Now()
	resp, err := e.Handle(ctx, getRequest("/api/slow", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(resp.Body))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInterceptor_APIReadStatuses(t *testing.T) {
	tests := []struct {
		name       string
		cached     bool
		status     int
		wantStatus int
		wantBody   string
	}{
		{name: "5xx falls back to cache", cached: true, status: 503, wantStatus: 200, wantBody: `{"cached":true}`},
		{name: "5xx without cache is returned", cached: false, status: 502, wantStatus: 502, wantBody: `{"error":"bad gateway"}`},
		{name: "4xx is returned even with cache", cached: true, status: 404, wantStatus: 404, wantBody: `{"error":"bad gateway"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeRemote{}
			e := newTestEngine(t, api)
			ctx := context.Background()

			if tt.cached {
				api.fetch = func(context.Context, *model.Request) (*model.Response, error) {
					return jsonResponse(200, `{"cached":true}`), nil
				}
				_, err := e.Handle(ctx, getRequest("/api/things", ""))
				require.NoError(t, err)
			}
			api.fetch = func(context.Context, *model.Request) (*model.Response, error) {
				return jsonResponse(tt.status, `{"error":"bad gateway"}`), nil
			}

			resp, err := e.Handle(ctx, getRequest("/api/things", ""))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.JSONEq(t, tt.wantBody, string(resp.Body))
		})
	}
}

func TestInterceptor_NoStoreIsNotCached(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		resp := jsonResponse(200, `{}`)
		resp.Header.Set("Cache-Control", "private, no-store")
		return resp, nil
	}}
	e := newTestEngine(t, api)

	_, err := e.Handle(context.Background(), getRequest("/api/secret", ""))
	require.NoError(t, err)

	keys, err := e.Cache.Keys(context.Background(), model.PartitionData)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestInterceptor_MutationQueuedWhenOffline(t *testing.T) {
	e := newTestEngine(t, &fakeRemote{})
	ctx := context.Background()

	resp, err := e.Handle(ctx, &model.Request{
		Method: http.MethodPost,
		URL:    "/api/items",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"name":"drill"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)

	var ack dto.QueuedAck
	require.NoError(t, json.Unmarshal(resp.Body, &ack))
	assert.True(t, ack.Offline)
	assert.True(t, ack.Queued)
	assert.NotEmpty(t, ack.Message)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &raw))
	assert.Len(t, raw, 3)

	assert.Equal(t, "true", resp.Header.Get(HeaderOfflineQueued))
	assert.True(t, IsTempID(resp.Header.Get(HeaderOfflineTempID)))

	actions, err := e.Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, resp.Header.Get(HeaderOfflineActionID), a.ID)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, 0, a.RetryCount)
	assert.Equal(t, model.ActionCreate, a.Type)
	assert.Equal(t, "items", a.Kind)
	assert.Equal(t, "/api/items", a.Path)
	assert.Equal(t, `{"name":"drill"}`, string(a.Payload))
	assert.NotEmpty(t, a.IdempotencyKey)
	assert.Equal(t, "application/json", a.Header.Get("Content-Type"))
	assert.Empty(t, a.Header.Get(HeaderIdempotencyKey))
}

func TestInterceptor_MutationDeduplicatedByIdempotencyKey(t *testing.T) {
	e := newTestEngine(t, &fakeRemote{})
	ctx := context.Background()

	send := func() *model.Response {
		resp, err := e.Handle(ctx, &model.Request{
			Method: http.MethodPut,
			URL:    "/api/items/7",
			Header: http.Header{HeaderIdempotencyKey: {"key-1"}},
			Body:   []byte(`{"name":"saw"}`),
		})
		require.NoError(t, err)
		return resp
	}

	first := send()
	second := send()

	assert.Equal(t, first.Header.Get(HeaderOfflineActionID), second.Header.Get(HeaderOfflineActionID))
	actions, err := e.Queue.List(ctx)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
	assert.Equal(t, "key-1", actions[0].IdempotencyKey)
}

func TestInterceptor_MutationRemoteResponsePassesThrough(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, `{"error":"invalid"}`), nil
	}}
	e := newTestEngine(t, api)
	ctx := context.Background()

	resp, err := e.Handle(ctx, &model.Request{Method: http.MethodPost, URL: "/api/items", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	counts, err := e.Queue.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[model.StatusPending])
}

func TestInterceptor_MutationSuccessInvalidatesCollection(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		return jsonResponse(200, `{}`), nil
	}}
	e := newTestEngine(t, api)
	ctx := context.Background()

	for _, u := range []string{"/api/items", "/api/items/1", "/api/items?page=2", "/api/itemsets"} {
		_, err := e.Handle(ctx, getRequest(u, ""))
		require.NoError(t, err)
	}

	resp, err := e.Handle(ctx, &model.Request{Method: http.MethodPatch, URL: "/api/items/1", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	keys, err := e.Cache.Keys(ctx, model.PartitionData)
	require.NoError(t, err)
	assert.Equal(t, []string{Key("GET", testRemote+"/api/itemsets", "")}, keys)
}

func TestInterceptor_MutationQueuesBehindOutstandingActions(t *testing.T) {
	api := &fakeRemote{}
	e := newTestEngine(t, api)
	ctx := context.Background()

	resp, err := e.Handle(ctx, &model.Request{Method: http.MethodPost, URL: "/api/items", Body: []byte(`{}`)})
	require.NoError(t, err)
	tempID := resp.Header.Get(HeaderOfflineTempID)

	api.fetch = func(context.Context, *model.Request) (*model.Response, error) {
		return jsonResponse(200, `{}`), nil
	}
	before := api.fetchCount()

	resp, err = e.Handle(ctx, &model.Request{Method: http.MethodPut, URL: "/api/items/" + tempID, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Equal(t, before, api.fetchCount())

	actions, err := e.Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, tempID, actions[1].EntityID)
	assert.Equal(t, actions[0].EntityKey(), actions[1].EntityKey())
}

func TestInterceptor_ImagePlaceholderWhenOffline(t *testing.T) {
	e := newTestEngine(t, &fakeRemote{})

	resp, err := e.Handle(context.Background(), getRequest("/uploads/photo.jpg", "image/webp,*/*"))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, PlaceholderImage, resp.Body)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "placeholder", resp.Header.Get(HeaderOfflineFallback))
}

func TestInterceptor_ImageCacheFirst(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		return &model.Response{Status: 200, Header: http.Header{"Content-Type": {"image/png"}}, Body: []byte("png")}, nil
	}}
	e := newTestEngine(t, api)
	ctx := context.Background()

	_, err := e.Handle(ctx, getRequest("/img/logo.png", ""))
	require.NoError(t, err)
	resp, err := e.Handle(ctx, getRequest("/img/logo.png", ""))
	require.NoError(t, err)

	assert.Equal(t, []byte("png"), resp.Body)
	assert.Equal(t, 1, api.fetchCount())
}

func TestInterceptor_StaticAssets(t *testing.T) {
	t.Run("served from precache before network", func(t *testing.T) {
		api := &fakeRemote{}
		e := newTestEngine(t, api)
		ctx := context.Background()
		require.NoError(t, e.Cache.Put(ctx, &model.CacheEntry{
			Partition: model.PartitionPrecache,
			Key:       Key("GET", testRemote+"/static/app.js", ""),
			Status:    200,
			Body:      []byte("console.log(1)"),
		}))

		resp, err := e.Handle(ctx, getRequest("/static/app.js", ""))
		require.NoError(t, err)
		assert.Equal(t, "console.log(1)", string(resp.Body))
		assert.Zero(t, api.fetchCount())
	})

	t.Run("miss while offline propagates the network error", func(t *testing.T) {
		e := newTestEngine(t, &fakeRemote{})

		_, err := e.Handle(context.Background(), getRequest("/assets/site.css", ""))

		assert.True(t, remote.IsNetworkError(err))
	})
}

func TestInterceptor_NavigationOfflinePage(t *testing.T) {
	e := newTestEngine(t, &fakeRemote{})

	resp, err := e.Handle(context.Background(), getRequest("/inventory", "text/html,application/xhtml+xml"))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, OfflinePage, resp.Body)
	assert.Equal(t, "offline-page", resp.Header.Get(HeaderOfflineFallback))
}

func TestInterceptor_OtherPassesThrough(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		return &model.Response{Status: 204}, nil
	}}
	e := newTestEngine(t, api)

	resp, err := e.Handle(context.Background(), &model.Request{Method: http.MethodOptions, URL: "/api/items"})
	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)

	keys, err := e.Cache.Keys(context.Background(), model.PartitionData)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// listFailingStore fails every action listing while keeping the other operations.
type listFailingStore struct {
	repository.Store
}

func (s listFailingStore) ListActions(context.Context, ...model.ActionStatus) ([]*model.QueuedAction, error) {
	return nil, errors.New("disk I/O error")
}

func TestInterceptor_MutationQueuedWhenOutstandingCheckFails(t *testing.T) {
	api := &fakeRemote{fetch: func(context.Context, *model.Request) (*model.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	e := NewEngine(EngineConfig{APIPrefix: "/api", Resolve: resolveTest, MaxRetries: 3},
		listFailingStore{Store: repository.NewMemoryStore()}, api, nil)
	t.Cleanup(e.Reconciler.Wait)

	resp, err := e.Handle(context.Background(), &model.Request{Method: http.MethodPut, URL: "/api/items/7", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Zero(t, api.fetchCount())
	assert.NotEmpty(t, resp.Header.Get(HeaderOfflineActionID))
}

func TestInterceptor_MutationOnSyncedTempID(t *testing.T) {
	tests := []struct {
		name    string
		online  bool
		wantHit string
	}{
		{name: "sent straight to the server id", online: true, wantHit: "DELETE /api/items/42"},
		{name: "queued against the server id", online: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeRemote{}
			e := newTestEngine(t, api)
			ctx := context.Background()

			created, err := e.Handle(ctx, &model.Request{Method: http.MethodPost, URL: "/api/items", Body: []byte(`{"name":"drill"}`)})
			require.NoError(t, err)
			tempID := created.Header.Get(HeaderOfflineTempID)
			require.True(t, IsTempID(tempID))

			api.replay = func(context.Context, model.QueuedAction) (*model.Response, error) {
				return jsonResponse(http.StatusCreated, `{"id":"42"}`), nil
			}
			res, err := e.Reconciler.RunPass(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, res.Completed)

			if tt.online {
				api.fetch = func(context.Context, *model.Request) (*model.Response, error) {
					return &model.Response{Status: http.StatusNoContent}, nil
				}
			}
			resp, err := e.Handle(ctx, &model.Request{
				Method: http.MethodDelete,
				URL:    "/api/items/" + tempID,
				Body:   []byte(`{"id":"` + tempID + `"}`),
			})
			require.NoError(t, err)

			if tt.online {
				assert.Equal(t, http.StatusNoContent, resp.Status)
				api.mu.Lock()
				last := api.fetched[len(api.fetched)-1]
				api.mu.Unlock()
				assert.Equal(t, tt.wantHit, last)
				return
			}

			require.Equal(t, http.StatusAccepted, resp.Status)
			queued, err := e.Queue.Get(ctx, resp.Header.Get(HeaderOfflineActionID))
			require.NoError(t, err)
			assert.Equal(t, "42", queued.EntityID)
			assert.Equal(t, "/api/items/42", queued.Path)
			assert.JSONEq(t, `{"id":"42"}`, string(queued.Payload))

			api.replay = func(context.Context, model.QueuedAction) (*model.Response, error) {
				return &model.Response{Status: http.StatusNoContent}, nil
			}
			_, err = e.Reconciler.RunPass(ctx)
			require.NoError(t, err)

			replayed := api.replays()
			assert.Equal(t, "/api/items/42", replayed[len(replayed)-1].Path)
			got, err := e.Queue.Get(ctx, queued.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusCompleted, got.Status)
			assert.Empty(t, got.LastError)
		})
	}
}

func TestInterceptor_MutationOnUnknownTempIDIsRejected(t *testing.T) {
	api := &fakeRemote{}
	e := newTestEngine(t, api)
	ctx := context.Background()

	_, err := e.Handle(ctx, &model.Request{Method: http.MethodDelete, URL: "/api/items/tmp-0000"})
	assert.ErrorIs(t, err, ErrUnresolvedTempID)
	assert.Zero(t, api.fetchCount())

	actions, err := e.Queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, actions)
}
