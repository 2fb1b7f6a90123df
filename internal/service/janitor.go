package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultRefreshConcurrency = 4

// JanitorConfig configures a Janitor.
type JanitorConfig struct {
	Interval           time.Duration
	CompletedRetention time.Duration
	// FailedRetention of zero keeps failed actions until an operator removes them.
	FailedRetention time.Duration
	// CriticalURLs are refreshed into the data partition on every sweep while online.
	CriticalURLs       []string
	RefreshConcurrency int
}

// SweepResult counts what one sweep removed or refreshed.
type SweepResult struct {
	ExpiredEntries  int       `json:"expired_entries"`
	TrimmedEntries  int       `json:"trimmed_entries"`
	PurgedCompleted int       `json:"purged_completed"`
	PurgedFailed    int       `json:"purged_failed"`
	Refreshed       int       `json:"refreshed"`
	RefreshFailed   int       `json:"refresh_failed"`
	At              time.Time `json:"at"`
}

// Janitor keeps local storage bounded and critical data warm.
type Janitor struct {
	cfg     JanitorConfig
	cache   *CacheStore
	queue   *MutationQueue
	fetcher Fetcher
	monitor *ConnectivityMonitor
	resolve func(string) string

	mu     sync.Mutex
	nextID int
	subs   map[int]func(SweepResult)

	now func() time.Time
}

// NewJanitor creates a janitor. fetcher and monitor may be nil, which
// disables critical URL refresh.
func NewJanitor(cfg JanitorConfig, cacheStore *CacheStore, queue *MutationQueue, fetcher Fetcher, monitor *ConnectivityMonitor, resolve func(string) string) *Janitor {
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = defaultRefreshConcurrency
	}
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	return &Janitor{
		cfg:     cfg,
		cache:   cacheStore,
		queue:   queue,
		fetcher: fetcher,
		monitor: monitor,
		resolve: resolve,
		subs:    make(map[int]func(SweepResult)),
		now:     time.Now,
	}
}

// Subscribe registers fn to receive every sweep result. The returned
// function removes it.
func (j *Janitor) Subscribe(fn func(SweepResult)) func() {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextID
	j.nextID++
	j.subs[id] = fn
	return func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		delete(j.subs, id)
	}
}

// Sweep runs one maintenance cycle. Every step runs even when an earlier one
// fails; the failures are joined into the returned error.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	now := j.now().UTC()
	res := SweepResult{At: now}
	var errs []error

	cs, err := j.cache.Sweep(ctx, now)
	res.ExpiredEntries = cs.Expired
	res.TrimmedEntries = cs.Trimmed
	if err != nil {
		errs = append(errs, err)
	}

	if j.cfg.CompletedRetention > 0 {
		n, err := j.queue.Purge(ctx, model.StatusCompleted, now.Add(-j.cfg.CompletedRetention))
		res.PurgedCompleted = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if j.cfg.FailedRetention > 0 {
		n, err := j.queue.Purge(ctx, model.StatusFailed, now.Add(-j.cfg.FailedRetention))
		res.PurgedFailed = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if j.fetcher != nil && len(j.cfg.CriticalURLs) > 0 && (j.monitor == nil || j.monitor.Online()) {
		res.Refreshed, res.RefreshFailed = j.refreshCritical(ctx)
	}

	metrics.RecordJanitorRemoved("expired", res.ExpiredEntries)
	metrics.RecordJanitorRemoved("trimmed", res.TrimmedEntries)
	metrics.RecordJanitorRemoved("completed_actions", res.PurgedCompleted)
	metrics.RecordJanitorRemoved("failed_actions", res.PurgedFailed)

	log.Info().
		Int("expired", res.ExpiredEntries).
		Int("trimmed", res.TrimmedEntries).
		Int("purged_completed", res.PurgedCompleted).
		Int("purged_failed", res.PurgedFailed).
		Int("refreshed", res.Refreshed).
		Int("refresh_failed", res.RefreshFailed).
		Msg("Janitor sweep finished")

	j.notify(res)
	return res, errors.Join(errs...)
}

func (j *Janitor) notify(res SweepResult) {
	j.mu.Lock()
	subs := make([]func(SweepResult), 0, len(j.subs))
	for id := 0; id < j.nextID; id++ {
		if fn, ok := j.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	j.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
}

// refreshCritical re-fetches every critical URL into the data partition.
// Individual failures are counted and logged, never returned.
func (j *Janitor) refreshCritical(ctx context.Context) (refreshed, failed int) {
	var ok, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.cfg.RefreshConcurrency)

	for _, u := range j.cfg.CriticalURLs {
		g.Go(func() error {
			req := &model.Request{
				Method: http.MethodGet,
				URL:    u,
				Header: http.Header{"Accept": []string{"application/json"}},
			}
			resp, err := j.fetcher.Fetch(ctx, req)
			if err != nil || !resp.OK() {
				bad.Add(1)
				log.Debug().Err(err).Str("url", u).Msg("Critical URL refresh failed")
				return nil
			}
			if _, err := j.cache.StoreResponse(ctx, model.PartitionData, http.MethodGet, j.resolve(u), resp); err != nil {
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	if j.cfg.Interval <= 0 {
		<-ctx.Done()
		return nil
	}

	j.sweepLogged(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweepLogged(ctx)
		}
	}
}

func (j *Janitor) sweepLogged(ctx context.Context) {
	if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Janitor sweep failed")
	}
}
