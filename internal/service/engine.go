package service

import (
	"context"
	"sync"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service/cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EngineConfig gathers the settings of every engine component.
type EngineConfig struct {
	APIPrefix string
	// Resolve maps a request path to the absolute remote URL.
	Resolve        func(string) string
	NetworkTimeout time.Duration
	Policies       []model.PartitionPolicy
	MaxRetries     int
	Backoff        Backoff
	CheckInterval  time.Duration
	InitialOnline  bool
	Reconciler     ReconcilerConfig
	Janitor        JanitorConfig
}

// ClearResult counts what ClearAll removed.
type ClearResult struct {
	CacheEntries int `json:"cache_entries"`
	Actions      int `json:"actions"`
}

// Engine owns every offline component and their shared state.
type Engine struct {
	Cache       *CacheStore
	Queue       *MutationQueue
	Monitor     *ConnectivityMonitor
	Interceptor *Interceptor
	Reconciler  *Reconciler
	Janitor     *Janitor

	store repository.Store

	mu        sync.Mutex
	lastSweep time.Time
}

// NewEngine wires the components over store and api. hot may be nil.
func NewEngine(cfg EngineConfig, store repository.Store, api RemoteAPI, hot cache.CacheWithMetrics) *Engine {
	policies := cfg.Policies
	if len(policies) == 0 {
		policies = DefaultPolicies(7*24*time.Hour, 200)
	}

	cacheStore := NewCacheStore(store, hot, policies)
	queue := NewMutationQueue(store, cfg.MaxRetries, cfg.Backoff)
	monitor := NewConnectivityMonitor(cfg.InitialOnline, api, cfg.CheckInterval)
	interceptor := NewInterceptor(InterceptorConfig{
		NetworkTimeout: cfg.NetworkTimeout,
		Resolve:        cfg.Resolve,
	}, NewClassifier(cfg.APIPrefix), cacheStore, queue, api, monitor)
	reconciler := NewReconciler(cfg.Reconciler, queue, api, monitor)
	janitor := NewJanitor(cfg.Janitor, cacheStore, queue, api, monitor, cfg.Resolve)

	monitor.OnReconnect(func() { reconciler.Trigger(SourceReconnect) })
	interceptor.OnQueued(func() { reconciler.Trigger(SourceEnqueue) })

	e := &Engine{
		Cache:       cacheStore,
		Queue:       queue,
		Monitor:     monitor,
		Interceptor: interceptor,
		Reconciler:  reconciler,
		Janitor:     janitor,
		store:       store,
	}
	janitor.Subscribe(func(res SweepResult) {
		e.mu.Lock()
		e.lastSweep = res.At
		e.mu.Unlock()
	})
	return e
}

// Handle routes one outbound request through the interceptor.
func (e *Engine) Handle(ctx context.Context, req *model.Request) (*model.Response, error) {
	return e.Interceptor.Handle(ctx, req)
}

// Store returns the storage adapter behind the engine.
func (e *Engine) Store() repository.Store {
	return e.store
}

// Stats returns a snapshot of cache, queue and connectivity state.
func (e *Engine) Stats(ctx context.Context) (*model.Stats, error) {
	usage, err := e.Cache.Usage(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := e.Queue.Counts(ctx)
	if err != nil {
		return nil, err
	}
	actions, err := e.Queue.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.Stats{
		PendingActions: int64(counts[model.StatusPending] + counts[model.StatusSyncing]),
		FailedActions:  int64(counts[model.StatusFailed]),
		Online:         e.Monitor.Online(),
		Partitions:     usage,
	}
	for _, u := range usage {
		stats.CachedItems += u.Entries
		stats.StorageBytes += u.Bytes
	}
	for _, a := range actions {
		stats.StorageBytes += a.Size()
	}
	if last := e.Reconciler.LastSyncAt(); !last.IsZero() {
		stats.LastSyncAt = &last
	}
	e.mu.Lock()
	if !e.lastSweep.IsZero() {
		sweep := e.lastSweep
		stats.LastSweepAt = &sweep
	}
	e.mu.Unlock()
	// The zero time means no transition happened since startup.
	if changed := e.Monitor.ChangedAt(); !changed.IsZero() {
		if stats.Online {
			stats.OnlineSince = &changed
		} else {
			stats.OfflineSince = &changed
		}
	}
	return stats, nil
}

// ClearAll removes every cached response and every queued action.
func (e *Engine) ClearAll(ctx context.Context) (ClearResult, error) {
	var res ClearResult
	n, err := e.Cache.ClearAll(ctx)
	res.CacheEntries = n
	if err != nil {
		return res, err
	}
	res.Actions, err = e.Queue.Clear(ctx)
	if err != nil {
		return res, err
	}
	log.Warn().Int("cache_entries", res.CacheEntries).Int("actions", res.Actions).Msg("All offline data cleared")
	return res, nil
}

// Run starts the connectivity checker, janitor and reconciler loops and blocks until ctx
// is cancelled or one of them fails.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Monitor.Run(gctx) })
	g.Go(func() error { return e.Janitor.Run(gctx) })
	g.Go(func() error { return e.Reconciler.Run(gctx) })
	return g.Wait()
}
