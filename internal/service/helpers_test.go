package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/stretchr/testify/require"
)

const testRemote = "http://remote.test"

func resolveTest(p string) string { return testRemote + p }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeRemote is a scriptable RemoteAPI that records every call.
type fakeRemote struct {
	mu       sync.Mutex
	fetch    func(ctx context.Context, req *model.Request) (*model.Response, error)
	replay   func(ctx context.Context, a model.QueuedAction) (*model.Response, error)
	ping     func(ctx context.Context) error
	fetched  []string
	replayed []model.QueuedAction
}

func connectionRefused(url string) error {
	return &remote.NetworkError{Op: "fetch", URL: url, Err: errors.New("connect: connection refused")}
}

func (f *fakeRemote) Fetch(ctx context.Context, req *model.Request) (*model.Response, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, req.Method+" "+req.URL)
	fn := f.fetch
	f.mu.Unlock()
	if fn == nil {
		return nil, connectionRefused(req.URL)
	}
	return fn(ctx, req)
}

func (f *fakeRemote) Replay(ctx context.Context, a model.QueuedAction) (*model.Response, error) {
	f.mu.Lock()
	f.replayed = append(f.replayed, *a.Clone())
	fn := f.replay
	f.mu.Unlock()
	if fn == nil {
		return &model.Response{Status: 200}, nil
	}
	return fn(ctx, a)
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	fn := f.ping
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func (f *fakeRemote) replays() []model.QueuedAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.QueuedAction, len(f.replayed))
	copy(out, f.replayed)
	return out
}

func jsonResponse(status int, body string) *model.Response {
	return &model.Response{
		Status: status,
		Header: map[string][]string{"Content-Type": {"application/json"}},
		Body:   []byte(body),
	}
}

func rejection(status int) func(context.Context, model.QueuedAction) (*model.Response, error) {
	return func(context.Context, model.QueuedAction) (*model.Response, error) {
		return &model.Response{Status: status}, &remote.RemoteRejection{Status: status}
	}
}

func newTestEngine(t *testing.T, api RemoteAPI) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{
		APIPrefix:      "/api",
		Resolve:        resolveTest,
		NetworkTimeout: 50 * time.Millisecond,
		Policies:       DefaultPolicies(7*24*time.Hour, 3),
		MaxRetries:     3,
		Backoff:        Backoff{Base: time.Second, Max: time.Minute},
		Reconciler:     ReconcilerConfig{ServerIDPaths: []string{"id", "data.id"}},
		Janitor: JanitorConfig{
			CompletedRetention: 24 * time.Hour,
			FailedRetention:    7 * 24 * time.Hour,
		},
	}, repository.NewMemoryStore(), api, nil)
	t.Cleanup(e.Reconciler.Wait)
	return e
}

// newQueueFixture returns a queue over a memory store with a controllable clock.
func newQueueFixture(t *testing.T, maxRetries int) (*MutationQueue, *testClock) {
	t.Helper()
	clock := newTestClock()
	q := NewMutationQueue(repository.NewMemoryStore(), maxRetries, Backoff{Base: time.Second, Max: time.Minute})
	q.now = clock.Now
	return q, clock
}

func enqueueAction(t *testing.T, q *MutationQueue, typ model.ActionType, kind, id string) *model.QueuedAction {
	t.Helper()
	method := map[model.ActionType]string{
		model.ActionCreate: "POST",
		model.ActionUpdate: "PUT",
		model.ActionDelete: "DELETE",
	}[typ]
	path := "/api/" + kind
	if id != "" {
		path += "/" + id
	}
	a, err := q.Enqueue(context.Background(), &model.QueuedAction{
		Type:     typ,
		Kind:     kind,
		EntityID: id,
		Method:   method,
		Path:     path,
		Payload:  []byte(`{"name":"x"}`),
	})
	require.NoError(t, err)
	return a
}
