package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/rs/zerolog/log"
)

// MutationQueue is the durable FIFO of writes waiting for replay.
type MutationQueue struct {
	repo       repository.QueueRepository
	maxRetries int
	backoff    Backoff
	now        func() time.Time
}

// NewMutationQueue creates a queue over repo.
func NewMutationQueue(repo repository.QueueRepository, maxRetries int, backoff Backoff) *MutationQueue {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &MutationQueue{
		repo:       repo,
		maxRetries: maxRetries,
		backoff:    backoff,
		now:        time.Now,
	}
}

func newActionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Enqueue stores a new pending action and returns the stored copy. An action
// whose idempotency key is already queued is not stored again; the existing
// action is returned instead.
func (q *MutationQueue) Enqueue(ctx context.Context, action *model.QueuedAction) (*model.QueuedAction, error) {
	if action.IdempotencyKey != "" {
		existing, err := q.repo.FindByIdempotencyKey(ctx, action.IdempotencyKey)
		if err == nil {
			log.Info().
				Str("action_id", existing.ID).
				Str("idempotency_key", action.IdempotencyKey).
				Msg("Duplicate mutation ignored, already queued")
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, storageErr("enqueue", err)
		}
	}

	now := q.now().UTC()
	stored := action.Clone()
	if stored.ID == "" {
		stored.ID = newActionID()
	}
	stored.Status = model.StatusPending
	stored.RetryCount = 0
	if stored.MaxRetries <= 0 {
		stored.MaxRetries = q.maxRetries
	}
	stored.LastError = ""
	stored.Terminal = false
	stored.EnqueuedAt = now
	stored.UpdatedAt = now
	stored.NextAttemptAt = time.Time{}
	stored.CompletedAt = time.Time{}

	err := q.repo.InsertAction(ctx, stored)
	if errors.Is(err, repository.ErrDuplicateKey) {
		existing, findErr := q.repo.FindByIdempotencyKey(ctx, stored.IdempotencyKey)
		if findErr != nil {
			return nil, storageErr("enqueue", findErr)
		}
		return existing, nil
	}
	if err != nil {
		log.Error().Err(err).Str("kind", stored.Kind).Msg("Failed to enqueue mutation")
		return nil, storageErr("enqueue", err)
	}

	log.Info().
		Str("action_id", stored.ID).
		Int64("seq", stored.Seq).
		Str("type", string(stored.Type)).
		Str("entity", stored.EntityKey()).
		Msg("Mutation queued for replay")
	q.publishCounts(ctx)
	return stored, nil
}

// Get returns one action or repository.ErrNotFound.
func (q *MutationQueue) Get(ctx context.Context, id string) (*model.QueuedAction, error) {
	a, err := q.repo.GetAction(ctx, id)
	return a, storageErr("get action", err)
}

// List returns actions in enqueue order, optionally filtered by status.
func (q *MutationQueue) List(ctx context.Context, statuses ...model.ActionStatus) ([]*model.QueuedAction, error) {
	actions, err := q.repo.ListActions(ctx, statuses...)
	return actions, storageErr("list actions", err)
}

// Unfinished returns every action that has not completed, in enqueue order.
func (q *MutationQueue) Unfinished(ctx context.Context) ([]*model.QueuedAction, error) {
	return q.List(ctx, model.StatusPending, model.StatusSyncing, model.StatusFailed)
}

// NextAttempt returns the earliest scheduled retry among pending actions.
// Pending actions without a backoff delay are not considered.
func (q *MutationQueue) NextAttempt(ctx context.Context) (time.Time, bool, error) {
	pending, err := q.List(ctx, model.StatusPending)
	if err != nil {
		return time.Time{}, false, err
	}
	var next time.Time
	for _, a := range pending {
		if a.NextAttemptAt.IsZero() {
			continue
		}
		if next.IsZero() || a.NextAttemptAt.Before(next) {
			next = a.NextAttemptAt
		}
	}
	return next, !next.IsZero(), nil
}

func (q *MutationQueue) update(ctx context.Context, id, op string, mutate func(a *model.QueuedAction) error) (*model.QueuedAction, error) {
	a, err := q.repo.GetAction(ctx, id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if err := mutate(a); err != nil {
		return nil, err
	}
	a.UpdatedAt = q.now().UTC()
	if err := q.repo.UpdateAction(ctx, a); err != nil {
		return nil, storageErr(op, err)
	}
	return a, nil
}

// MarkSyncing moves an eligible action to syncing.
func (q *MutationQueue) MarkSyncing(ctx context.Context, id string) (*model.QueuedAction, error) {
	return q.update(ctx, id, "mark syncing", func(a *model.QueuedAction) error {
		if a.Status != model.StatusPending && a.Status != model.StatusFailed {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusSyncing)
		}
		a.Status = model.StatusSyncing
		return nil
	})
}

// MarkCompleted records a successful replay. note is kept in LastError for
// completions that need explaining, such as a duplicate create.
func (q *MutationQueue) MarkCompleted(ctx context.Context, id, serverID, note string) (*model.QueuedAction, error) {
	a, err := q.update(ctx, id, "mark completed", func(a *model.QueuedAction) error {
		a.Status = model.StatusCompleted
		a.CompletedAt = q.now().UTC()
		a.NextAttemptAt = time.Time{}
		a.LastError = note
		if serverID != "" {
			a.ServerID = serverID
		}
		return nil
	})
	if err == nil {
		q.publishCounts(ctx)
	}
	return a, err
}

// MarkFailed records a failure that will not be retried automatically.
func (q *MutationQueue) MarkFailed(ctx context.Context, id string, cause error, terminal bool) (*model.QueuedAction, error) {
	a, err := q.update(ctx, id, "mark failed", func(a *model.QueuedAction) error {
		a.Status = model.StatusFailed
		a.Terminal = terminal
		a.NextAttemptAt = time.Time{}
		a.LastError = errorText(cause)
		return nil
	})
	if err == nil {
		q.publishCounts(ctx)
	}
	return a, err
}

// ScheduleRetry counts a failed attempt. The action returns to pending after a
// backoff delay, or becomes failed once its retries are exhausted.
func (q *MutationQueue) ScheduleRetry(ctx context.Context, id string, cause error) (*model.QueuedAction, error) {
	a, err := q.update(ctx, id, "schedule retry", func(a *model.QueuedAction) error {
		a.RetryCount++
		a.LastError = errorText(cause)
		if a.RetryCount >= a.MaxRetries {
			a.Status = model.StatusFailed
			a.NextAttemptAt = time.Time{}
			return nil
		}
		a.Status = model.StatusPending
		a.NextAttemptAt = q.now().UTC().Add(q.backoff.Delay(a.RetryCount))
		return nil
	})
	if err == nil {
		q.publishCounts(ctx)
	}
	return a, err
}

// Release returns a syncing action to pending without counting an attempt.
func (q *MutationQueue) Release(ctx context.Context, id string, cause error) (*model.QueuedAction, error) {
	return q.update(ctx, id, "release", func(a *model.QueuedAction) error {
		a.Status = model.StatusPending
		a.NextAttemptAt = time.Time{}
		a.LastError = errorText(cause)
		return nil
	})
}

// Retry re-queues a failed action with a fresh retry budget.
func (q *MutationQueue) Retry(ctx context.Context, id string) (*model.QueuedAction, error) {
	a, err := q.update(ctx, id, "retry", func(a *model.QueuedAction) error {
		if a.Status != model.StatusFailed {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusPending)
		}
		a.Status = model.StatusPending
		a.RetryCount = 0
		a.Terminal = false
		a.NextAttemptAt = time.Time{}
		return nil
	})
	if err == nil {
		log.Info().Str("action_id", id).Msg("Failed action re-queued")
		q.publishCounts(ctx)
	}
	return a, err
}

// RecoverInFlight returns actions left syncing by an interrupted pass to pending.
func (q *MutationQueue) RecoverInFlight(ctx context.Context) (int, error) {
	stuck, err := q.List(ctx, model.StatusSyncing)
	if err != nil {
		return 0, err
	}
	for _, a := range stuck {
		if _, err := q.Release(ctx, a.ID, errors.New("interrupted during sync")); err != nil {
			return 0, err
		}
	}
	if len(stuck) > 0 {
		log.Warn().Int("count", len(stuck)).Msg("Recovered actions interrupted mid-sync")
		q.publishCounts(ctx)
	}
	return len(stuck), nil
}

// RewriteTempID points every unfinished action that references tempID at serverID.
func (q *MutationQueue) RewriteTempID(ctx context.Context, tempID, serverID string) (int, error) {
	if tempID == "" || serverID == "" || tempID == serverID {
		return 0, nil
	}
	actions, err := q.List(ctx, model.StatusPending, model.StatusSyncing, model.StatusFailed)
	if err != nil {
		return 0, err
	}

	rewritten := 0
	for _, a := range actions {
		if !rewriteTempID(a, tempID, serverID) {
			continue
		}
		a.UpdatedAt = q.now().UTC()
		if err := q.repo.UpdateAction(ctx, a); err != nil {
			return rewritten, storageErr("rewrite temp id", err)
		}
		rewritten++
	}
	if rewritten > 0 {
		log.Info().Str("temp_id", tempID).Str("server_id", serverID).Int("actions", rewritten).Msg("Rewrote temp id in queued actions")
	}
	return rewritten, nil
}

// ResolveTempID looks up the CREATE that handed out tempID. It returns the
// server id once that CREATE has synced, or waiting=true while it is still
// queued. A temp id with no CREATE, or whose CREATE completed without a
// server id, yields ErrUnresolvedTempID.
func (q *MutationQueue) ResolveTempID(ctx context.Context, tempID string) (serverID string, waiting bool, err error) {
	create, err := q.repo.FindByTempID(ctx, tempID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, fmt.Errorf("%w: %s", ErrUnresolvedTempID, tempID)
	}
	if err != nil {
		return "", false, storageErr("find temp id", err)
	}
	if create.Status != model.StatusCompleted {
		return "", true, nil
	}
	if create.ServerID == "" {
		return "", false, fmt.Errorf("%w: %s", ErrUnresolvedTempID, tempID)
	}
	return create.ServerID, false, nil
}

// RetargetAction rewrites tempID to serverID in a single stored action.
func (q *MutationQueue) RetargetAction(ctx context.Context, id, tempID, serverID string) (*model.QueuedAction, error) {
	return q.update(ctx, id, "rewrite temp id", func(a *model.QueuedAction) error {
		rewriteTempID(a, tempID, serverID)
		return nil
	})
}

// Delete removes one action.
func (q *MutationQueue) Delete(ctx context.Context, id string) error {
	if err := q.repo.DeleteAction(ctx, id); err != nil {
		return storageErr("delete action", err)
	}
	q.publishCounts(ctx)
	return nil
}

// Purge removes actions in status last updated before cutoff.
func (q *MutationQueue) Purge(ctx context.Context, status model.ActionStatus, cutoff time.Time) (int, error) {
	n, err := q.repo.DeleteFinishedBefore(ctx, status, cutoff)
	if err != nil {
		return 0, storageErr("purge actions", err)
	}
	if n > 0 {
		q.publishCounts(ctx)
	}
	return n, nil
}

// Counts returns the number of actions per status.
func (q *MutationQueue) Counts(ctx context.Context) (map[model.ActionStatus]int, error) {
	counts, err := q.repo.CountByStatus(ctx)
	return counts, storageErr("count actions", err)
}

// Clear removes every action.
func (q *MutationQueue) Clear(ctx context.Context) (int, error) {
	n, err := q.repo.ClearActions(ctx)
	if err != nil {
		return 0, storageErr("clear actions", err)
	}
	q.publishCounts(ctx)
	return n, nil
}

func (q *MutationQueue) publishCounts(ctx context.Context) {
	counts, err := q.repo.CountByStatus(ctx)
	if err != nil {
		return
	}
	out := make(map[string]int, len(counts))
	for st, n := range counts {
		out[string(st)] = n
	}
	metrics.SetQueueCounts(out)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// HasOutstanding reports whether kind/entityID has actions still waiting to
// replay. New writes to such an entity must queue behind them.
func (q *MutationQueue) HasOutstanding(ctx context.Context, kind, entityID string) (bool, error) {
	if entityID == "" {
		return false, nil
	}
	actions, err := q.List(ctx, model.StatusPending, model.StatusSyncing)
	if err != nil {
		return false, err
	}
	for _, a := range actions {
		if a.Kind == kind && (a.EntityID == entityID || a.TempID == entityID) {
			return true, nil
		}
	}
	return false, nil
}
