package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
)

// MemoryStore keeps everything in process memory. It backs tests and
// STORAGE_DRIVER=memory; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]*model.CacheEntry
	actions map[string]*model.QueuedAction
	seq     int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]*model.CacheEntry),
		actions: make(map[string]*model.QueuedAction),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) GetEntry(_ context.Context, partition, key string) (*model.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[partition][key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) PutEntry(_ context.Context, entry *model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[entry.Partition]
	if !ok {
		p = make(map[string]*model.CacheEntry)
		s.entries[entry.Partition] = p
	}
	p[entry.Key] = entry.Clone()
	return nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries[partition], key)
	return nil
}

func (s *MemoryStore) ListKeys(_ context.Context, partition string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries[partition]))
	for k := range s.entries[partition] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) ClearPartition(_ context.Context, partition string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries[partition])
	delete(s.entries, partition)
	return n, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, partition string, storedBefore, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries[partition] {
		expired := !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
		if e.StoredAt.Before(storedBefore) || expired {
			delete(s.entries[partition], k)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) TrimPartition(_ context.Context, partition string, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.entries[partition]
	excess := len(p) - max
	if max < 0 || excess <= 0 {
		return 0, nil
	}

	all := make([]*model.CacheEntry, 0, len(p))
	for _, e := range p {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StoredAt.Equal(all[j].StoredAt) {
			return all[i].Key < all[j].Key
		}
		return all[i].StoredAt.Before(all[j].StoredAt)
	})
	for _, e := range all[:excess] {
		delete(p, e.Key)
	}
	return excess, nil
}

func (s *MemoryStore) Usage(context.Context) ([]model.PartitionUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := make([]model.PartitionUsage, 0, len(s.entries))
	for name, p := range s.entries {
		if len(p) == 0 {
			continue
		}
		u := model.PartitionUsage{Partition: name, Entries: int64(len(p))}
		for _, e := range p {
			u.Bytes += e.Size()
		}
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Partition < usage[j].Partition })
	return usage, nil
}

func (s *MemoryStore) InsertAction(_ context.Context, action *model.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if action.IdempotencyKey != "" {
		for _, a := range s.actions {
			if a.IdempotencyKey == action.IdempotencyKey {
				return ErrDuplicateKey
			}
		}
	}
	s.seq++
	action.Seq = s.seq
	s.actions[action.ID] = action.Clone()
	return nil
}

func (s *MemoryStore) GetAction(_ context.Context, id string) (*model.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) UpdateAction(_ context.Context, action *model.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.actions[action.ID]
	if !ok {
		return ErrNotFound
	}
	updated := action.Clone()
	updated.Seq = current.Seq
	s.actions[action.ID] = updated
	return nil
}

func (s *MemoryStore) DeleteAction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actions[id]; !ok {
		return ErrNotFound
	}
	delete(s.actions, id)
	return nil
}

func (s *MemoryStore) ListActions(_ context.Context, statuses ...model.ActionStatus) ([]*model.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.QueuedAction, 0, len(s.actions))
	for _, a := range s.actions {
		if matchStatus(a.Status, statuses) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (*model.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key == "" {
		return nil, ErrNotFound
	}
	for _, a := range s.actions {
		if a.IdempotencyKey == key {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByTempID(_ context.Context, tempID string) (*model.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tempID == "" {
		return nil, ErrNotFound
	}
	var found *model.QueuedAction
	for _, a := range s.actions {
		if a.Type == model.ActionCreate && a.TempID == tempID && (found == nil || a.Seq < found.Seq) {
			found = a
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

func (s *MemoryStore) DeleteFinishedBefore(_ context.Context, status model.ActionStatus, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, a := range s.actions {
		if a.Status == status && a.UpdatedAt.Before(cutoff) {
			delete(s.actions, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) CountByStatus(context.Context) (map[model.ActionStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.ActionStatus]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for _, a := range s.actions {
		counts[a.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) ClearActions(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.actions)
	s.actions = make(map[string]*model.QueuedAction)
	return n, nil
}

func matchStatus(status model.ActionStatus, statuses []model.ActionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
