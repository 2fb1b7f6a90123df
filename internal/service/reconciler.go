package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Trigger sources, used for logging and metrics.
const (
	SourceReconnect = "reconnect"
	SourceManual    = "manual"
	SourceInterval  = "interval"
	SourceRetry     = "retry"
	SourceEnqueue   = "enqueue"
)

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	// Interval between periodic passes while online. Zero disables them.
	Interval time.Duration
	// Rate caps replays per second. Zero or less means unlimited.
	Rate float64
	// ServerIDPaths are gjson paths tried against CREATE responses.
	ServerIDPaths []string
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Attempted int           `json:"attempted"`
	Completed int           `json:"completed"`
	Retried   int           `json:"retried"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Aborted   bool          `json:"aborted"`
	Duration  time.Duration `json:"duration"`
}

type replayOutcome int

const (
	outcomeCompleted replayOutcome = iota
	outcomeRetried
	outcomeFailed
	outcomeSkipped
	outcomeAborted
)

// Reconciler replays queued mutations against the remote API. At most one
// pass runs at a time; triggers that arrive during a pass are dropped.
type Reconciler struct {
	cfg     ReconcilerConfig
	queue   *MutationQueue
	remote  Replayer
	monitor *ConnectivityMonitor
	limiter *rate.Limiter

	running atomic.Bool
	wg      sync.WaitGroup
	rearm   chan struct{}

	mu       sync.Mutex
	baseCtx  context.Context
	lastSync time.Time

	now func() time.Time
}

// NewReconciler creates a reconciler. monitor may be nil.
func NewReconciler(cfg ReconcilerConfig, queue *MutationQueue, replayer Replayer, monitor *ConnectivityMonitor) *Reconciler {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if len(cfg.ServerIDPaths) == 0 {
		cfg.ServerIDPaths = []string{"id", "data.id"}
	}
	return &Reconciler{
		cfg:     cfg,
		queue:   queue,
		remote:  replayer,
		monitor: monitor,
		limiter: rate.NewLimiter(limit, 1),
		rearm:   make(chan struct{}, 1),
		baseCtx: context.Background(),
		now:     time.Now,
	}
}

// Running reports whether a pass is in progress.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// LastSyncAt returns when a pass last completed an action, zero if never.
func (r *Reconciler) LastSyncAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync
}

func (r *Reconciler) markSynced(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.lastSync) {
		r.lastSync = t
	}
}

func (r *Reconciler) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseCtx
}

// Trigger starts a pass in the background and reports whether it started.
// It never blocks; a trigger during a running pass is coalesced into it.
func (r *Reconciler) Trigger(source string) bool {
	if !r.running.CompareAndSwap(false, true) {
		metrics.RecordSyncTrigger(source, "coalesced")
		log.Debug().Str("source", source).Msg("Sync already running, trigger coalesced")
		return false
	}
	metrics.RecordSyncTrigger(source, "started")

	ctx := r.context()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		if _, err := r.pass(ctx, source); err != nil {
			log.Error().Err(err).Str("source", source).Msg("Sync pass failed")
		}
	}()
	return true
}

// RunPass runs one pass synchronously. It returns ErrPassInProgress when
// another pass is already running.
func (r *Reconciler) RunPass(ctx context.Context) (PassResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.RecordSyncTrigger(SourceManual, "coalesced")
		return PassResult{}, ErrPassInProgress
	}
	defer r.running.Store(false)
	metrics.RecordSyncTrigger(SourceManual, "started")
	return r.pass(ctx, SourceManual)
}

// Wait blocks until background passes started by Trigger have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Run recovers interrupted actions, then drives periodic and retry passes
// until ctx is cancelled. Passes in flight are awaited before returning.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	if _, err := r.queue.RecoverInFlight(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover in-flight actions")
	}
	r.RestoreLastSync(ctx)

	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	r.armRetry(ctx, retry)
	if r.online() {
		r.Trigger(SourceInterval)
	}

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return nil
		case <-tick:
			if r.online() {
				r.Trigger(SourceInterval)
			}
		case <-retry.C:
			if r.online() {
				r.Trigger(SourceRetry)
			}
		case <-r.rearm:
			r.armRetry(ctx, retry)
		}
	}
}

func (r *Reconciler) online() bool {
	return r.monitor == nil || r.monitor.Online()
}

func (r *Reconciler) armRetry(ctx context.Context, timer *time.Timer) {
	next, ok, err := r.queue.NextAttempt(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not compute next retry")
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if !ok {
		return
	}
	d := next.Sub(r.now())
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

// RestoreLastSync seeds LastSyncAt from the newest completed action in storage.
func (r *Reconciler) RestoreLastSync(ctx context.Context) {
	completed, err := r.queue.List(ctx, model.StatusCompleted)
	if err != nil {
		return
	}
	for _, a := range completed {
		r.markSynced(a.CompletedAt)
	}
}

func (r *Reconciler) pass(ctx context.Context, source string) (PassResult, error) {
	start := r.now()
	var res PassResult
	defer func() {
		select {
		case r.rearm <- struct{}{}:
		default:
		}
	}()

	actions, err := r.queue.Unfinished(ctx)
	if err != nil {
		metrics.RecordSyncPass(time.Since(start), "error")
		return res, err
	}

	due := 0
	for _, a := range actions {
		if a.Eligible(start) {
			due++
		}
	}
	if due == 0 {
		res.Duration = r.now().Sub(start)
		metrics.RecordSyncPass(res.Duration, "empty")
		return res, nil
	}

	log.Info().Str("source", source).Int("eligible", due).Msg("Sync pass started")

	// Actions are walked in enqueue order. One that is still backing off or in
	// flight holds back every later action of its entity, within this pass and
	// across passes. Failed actions hold nothing.
	blocked := make(map[string]bool)
	for _, a := range actions {
		if ctx.Err() != nil {
			res.Aborted = true
			break
		}
		entity := a.EntityKey()
		if !a.Eligible(start) {
			if a.Status != model.StatusFailed {
				blocked[entity] = true
			}
			continue
		}
		if blocked[entity] {
			res.Skipped++
			metrics.RecordSyncAction("skipped")
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			res.Aborted = true
			break
		}

		res.Attempted++
		outcome, err := r.replay(ctx, a)
		if err != nil {
			log.Error().Err(err).Str("action_id", a.ID).Msg("Storage failure during replay")
			blocked[entity] = true
			continue
		}

		switch outcome {
		case outcomeCompleted:
			res.Completed++
			r.markSynced(r.now().UTC())
			continue
		case outcomeRetried:
			res.Retried++
		case outcomeFailed:
			res.Failed++
			continue
		case outcomeSkipped:
			res.Attempted--
			res.Skipped++
		case outcomeAborted:
			res.Attempted--
			res.Aborted = true
		}
		if res.Aborted {
			break
		}
		blocked[entity] = true
	}

	res.Duration = r.now().Sub(start)
	result := "ok"
	if res.Aborted {
		result = "aborted"
	}
	metrics.RecordSyncPass(res.Duration, result)
	log.Info().
		Str("source", source).
		Int("attempted", res.Attempted).
		Int("completed", res.Completed).
		Int("retried", res.Retried).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Bool("aborted", res.Aborted).
		Dur("duration", res.Duration).
		Msg("Sync pass finished")
	return res, nil
}

// replay sends one action and records the outcome. The returned error is a
// storage failure; remote failures are encoded in the outcome.
func (r *Reconciler) replay(ctx context.Context, a *model.QueuedAction) (replayOutcome, error) {
	action, err := r.queue.MarkSyncing(ctx, a.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, repository.ErrNotFound) {
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}

	logger := log.With().
		Str("action_id", action.ID).
		Str("type", string(action.Type)).
		Str("entity", action.EntityKey()).
		Logger()

	if action.Type != model.ActionCreate && IsTempID(action.EntityID) {
		resolved, err := r.resolveTarget(ctx, action)
		switch {
		case errors.Is(err, ErrUnresolvedTempID):
			logger.Warn().Err(err).Msg("Queued action targets an entity that never synced")
			if _, markErr := r.queue.MarkFailed(ctx, action.ID, err, true); markErr != nil {
				return outcomeFailed, markErr
			}
			metrics.RecordSyncAction("failed")
			return outcomeFailed, nil
		case err != nil:
			if _, relErr := r.queue.Release(ctx, action.ID, err); relErr != nil {
				logger.Error().Err(relErr).Msg("Failed to release action")
			}
			return outcomeSkipped, err
		}
		action = resolved
	}

	resp, replayErr := r.remote.Replay(ctx, *action)
	if replayErr == nil {
		return r.complete(ctx, action, resp, "")
	}

	var rej *remote.RemoteRejection
	switch {
	case errors.As(replayErr, &rej):
		switch {
		case action.Type == model.ActionCreate && rej.Status == http.StatusConflict:
			logger.Warn().Msg("Create conflicts with an existing entity, treating as synced")
			return r.complete(ctx, action, resp, "conflict: entity already exists on the remote")
		case action.Type == model.ActionDelete && !IsTempID(action.EntityID) &&
			(rej.Status == http.StatusNotFound || rej.Status == http.StatusGone):
			return r.complete(ctx, action, resp, "entity already absent on the remote")
		case rej.Retryable():
			return r.retry(ctx, action, replayErr)
		default:
			logger.Warn().Int("status", rej.Status).Msg("Remote rejected queued action")
			if _, err := r.queue.MarkFailed(ctx, action.ID, replayErr, true); err != nil {
				return outcomeFailed, err
			}
			metrics.RecordSyncAction("failed")
			return outcomeFailed, nil
		}

	case ctx.Err() != nil || remote.IsConnectionLoss(replayErr):
		if _, err := r.queue.Release(ctx, action.ID, replayErr); err != nil && ctx.Err() == nil {
			return outcomeAborted, err
		}
		if ctx.Err() == nil {
			logger.Warn().Err(replayErr).Msg("Connection lost during sync, aborting pass")
			if r.monitor != nil {
				r.monitor.SetOnline(false)
			}
		}
		metrics.RecordSyncAction("released")
		return outcomeAborted, nil

	default:
		return r.retry(ctx, action, replayErr)
	}
}

// resolveTarget rewrites an action still addressed by a temp id to the server
// id of its synced CREATE. The CREATE normally rewrites its followers when it
// completes; this covers followers that missed that rewrite.
func (r *Reconciler) resolveTarget(ctx context.Context, action *model.QueuedAction) (*model.QueuedAction, error) {
	tempID := action.EntityID
	serverID, waiting, err := r.queue.ResolveTempID(ctx, tempID)
	if err != nil {
		return nil, err
	}
	if waiting {
		return nil, fmt.Errorf("%w: create for %s has not synced", ErrUnresolvedTempID, tempID)
	}
	return r.queue.RetargetAction(ctx, action.ID, tempID, serverID)
}

func (r *Reconciler) retry(ctx context.Context, action *model.QueuedAction, cause error) (replayOutcome, error) {
	updated, err := r.queue.ScheduleRetry(ctx, action.ID, cause)
	if err != nil {
		return outcomeRetried, err
	}
	if updated.Status == model.StatusFailed {
		log.Warn().Str("action_id", action.ID).Int("retries", updated.RetryCount).Err(cause).Msg("Retries exhausted, action failed")
		metrics.RecordSyncAction("failed")
		return outcomeFailed, nil
	}
	log.Info().
		Str("action_id", action.ID).
		Int("retry", updated.RetryCount).
		Time("next_attempt_at", updated.NextAttemptAt).
		Err(cause).
		Msg("Replay failed, retry scheduled")
	metrics.RecordSyncAction("retried")
	return outcomeRetried, nil
}

func (r *Reconciler) complete(ctx context.Context, action *model.QueuedAction, resp *model.Response, note string) (replayOutcome, error) {
	var serverID string
	if action.Type == model.ActionCreate && resp != nil {
		serverID = ExtractServerID(resp.Body, r.cfg.ServerIDPaths)
	}
	if _, err := r.queue.MarkCompleted(ctx, action.ID, serverID, note); err != nil {
		return outcomeCompleted, err
	}
	metrics.RecordSyncAction("completed")
	log.Debug().Str("action_id", action.ID).Str("server_id", serverID).Msg("Queued action synced")

	if action.TempID != "" && serverID != "" {
		if _, err := r.queue.RewriteTempID(ctx, action.TempID, serverID); err != nil {
			return outcomeCompleted, err
		}
	}
	return outcomeCompleted, nil
}
