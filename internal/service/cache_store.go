package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service/cache"
	"github.com/rs/zerolog/log"
)

// DefaultPolicies returns the four standard partitions.
func DefaultPolicies(maxAge time.Duration, imageMaxEntries int) []model.PartitionPolicy {
	return []model.PartitionPolicy{
		{Name: model.PartitionPrecache, Persistent: true},
		{Name: model.PartitionRuntime, MaxAge: maxAge},
		{Name: model.PartitionData, MaxAge: maxAge},
		{Name: model.PartitionImage, MaxAge: maxAge, MaxEntries: imageMaxEntries},
	}
}

// CacheSweep counts entries removed from the cache by one sweep.
type CacheSweep struct {
	Expired int `json:"expired"`
	Trimmed int `json:"trimmed"`
}

// CacheStore is the partitioned response cache. The durable repository is
// the source of truth; the optional hot tier only mirrors recent reads.
type CacheStore struct {
	repo     repository.CacheRepository
	hot      cache.CacheWithMetrics
	policies map[string]model.PartitionPolicy
	order    []string
	now      func() time.Time
}

// NewCacheStore creates a store over repo. hot may be nil.
func NewCacheStore(repo repository.CacheRepository, hot cache.CacheWithMetrics, policies []model.PartitionPolicy) *CacheStore {
	s := &CacheStore{
		repo:     repo,
		hot:      hot,
		policies: make(map[string]model.PartitionPolicy, len(policies)),
		now:      time.Now,
	}
	for _, p := range policies {
		s.policies[p.Name] = p
		s.order = append(s.order, p.Name)
	}
	return s
}

// Key normalizes a request identity: upper-case method, lower-case scheme and
// host, default ports dropped, query parameters sorted, fragment dropped. A
// non-empty discriminator (for example a Vary header value) is appended after "|".
func Key(method, rawURL, discriminator string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = "GET"
	}

	normalized := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		u.Scheme = strings.ToLower(u.Scheme)
		host := strings.ToLower(u.Host)
		switch {
		case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
			host = strings.TrimSuffix(host, ":80")
		case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
			host = strings.TrimSuffix(host, ":443")
		}
		u.Host = host
		u.Fragment = ""
		u.RawFragment = ""
		u.ForceQuery = false
		if q := u.Query(); len(q) > 0 {
			u.RawQuery = q.Encode()
		} else {
			u.RawQuery = ""
		}
		normalized = u.String()
	}

	key := m + " " + normalized
	if discriminator != "" {
		key += "|" + discriminator
	}
	return key
}

// keyURL returns the URL portion of a key built by Key.
func keyURL(key string) string {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		key = key[i+1:]
	}
	if i := strings.IndexByte(key, '|'); i >= 0 {
		key = key[:i]
	}
	return key
}

func hotKey(partition, key string) string {
	return partition + "\x00" + key
}

// Partitions returns the partition names in configuration order.
func (s *CacheStore) Partitions() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Policy returns the retention policy of a partition.
func (s *CacheStore) Policy(partition string) (model.PartitionPolicy, bool) {
	p, ok := s.policies[partition]
	return p, ok
}

func (s *CacheStore) policy(partition string) (model.PartitionPolicy, error) {
	p, ok := s.policies[partition]
	if !ok {
		return model.PartitionPolicy{}, ErrUnknownPartition
	}
	return p, nil
}

func (s *CacheStore) maxAge(p model.PartitionPolicy) time.Duration {
	if p.Persistent {
		return 0
	}
	return p.MaxAge
}

// Get returns the usable entry stored under key. Absent and expired entries
// both yield a *CacheMissError.
func (s *CacheStore) Get(ctx context.Context, partition, key string) (*model.CacheEntry, error) {
	p, err := s.policy(partition)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if s.hot != nil {
		if e, ok := s.hot.Get(hotKey(partition, key)); ok && !e.Expired(now, s.maxAge(p)) {
			metrics.RecordCacheOperation(partition, "hit")
			return e, nil
		}
	}

	e, err := s.repo.GetEntry(ctx, partition, key)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordCacheOperation(partition, "miss")
		return nil, &CacheMissError{Key: key}
	}
	if err != nil {
		log.Error().Err(err).Str("partition", partition).Str("key", key).Msg("Cache read failed")
		return nil, storageErr("cache get", err)
	}
	if e.Expired(now, s.maxAge(p)) {
		metrics.RecordCacheOperation(partition, "expired")
		return nil, &CacheMissError{Key: key}
	}

	if s.hot != nil {
		s.hot.Set(hotKey(partition, key), e)
	}
	metrics.RecordCacheOperation(partition, "hit")
	return e, nil
}

// Match looks key up in each partition in order and returns the first usable entry.
func (s *CacheStore) Match(ctx context.Context, key string, partitions ...string) (*model.CacheEntry, error) {
	for _, partition := range partitions {
		e, err := s.Get(ctx, partition, key)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}
	return nil, &CacheMissError{Key: key}
}

// Put stores entry, superseding any previous entry under the same key.
func (s *CacheStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	if _, err := s.policy(entry.Partition); err != nil {
		return err
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.now().UTC()
	}

	if err := s.repo.PutEntry(ctx, entry); err != nil {
		log.Error().Err(err).Str("partition", entry.Partition).Str("key", entry.Key).Msg("Cache write failed")
		return storageErr("cache put", err)
	}
	if s.hot != nil {
		s.hot.Set(hotKey(entry.Partition, entry.Key), entry)
	}
	metrics.RecordCacheOperation(entry.Partition, "store")
	return nil
}

// StoreResponse caches a fetched response under Key(method, absURL, "").
// Responses marked Cache-Control: no-store are skipped and reported as false.
// Set-Cookie is never persisted.
func (s *CacheStore) StoreResponse(ctx context.Context, partition, method, absURL string, resp *model.Response) (bool, error) {
	if resp == nil || strings.Contains(strings.ToLower(resp.Header.Get("Cache-Control")), "no-store") {
		return false, nil
	}
	header := resp.Header.Clone()
	if header != nil {
		header.Del("Set-Cookie")
	}
	entry := &model.CacheEntry{
		Partition: partition,
		Key:       Key(method, absURL, ""),
		Method:    strings.ToUpper(method),
		URL:       absURL,
		Status:    resp.Status,
		Header:    header,
		Body:      append([]byte(nil), resp.Body...),
	}
	if err := s.Put(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes one entry.
func (s *CacheStore) Delete(ctx context.Context, partition, key string) error {
	if _, err := s.policy(partition); err != nil {
		return err
	}
	if s.hot != nil {
		s.hot.Invalidate(hotKey(partition, key))
	}
	return storageErr("cache delete", s.repo.DeleteEntry(ctx, partition, key))
}

// Keys lists the keys stored in a partition.
func (s *CacheStore) Keys(ctx context.Context, partition string) ([]string, error) {
	if _, err := s.policy(partition); err != nil {
		return nil, err
	}
	keys, err := s.repo.ListKeys(ctx, partition)
	return keys, storageErr("cache keys", err)
}

// Clear empties a partition.
func (s *CacheStore) Clear(ctx context.Context, partition string) (int, error) {
	if _, err := s.policy(partition); err != nil {
		return 0, err
	}
	if s.hot != nil {
		s.hot.InvalidatePrefix(partition + "\x00")
	}
	n, err := s.repo.ClearPartition(ctx, partition)
	if err != nil {
		return 0, storageErr("cache clear", err)
	}
	log.Info().Str("partition", partition).Int("removed", n).Msg("Cache partition cleared")
	return n, nil
}

// ClearAll empties every partition.
func (s *CacheStore) ClearAll(ctx context.Context) (int, error) {
	total := 0
	for _, partition := range s.order {
		n, err := s.Clear(ctx, partition)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// InvalidatePrefix removes every entry of partition whose URL equals
// urlPrefix or lies below it (next character "/" or "?"), whatever the method.
func (s *CacheStore) InvalidatePrefix(ctx context.Context, partition, urlPrefix string) (int, error) {
	keys, err := s.Keys(ctx, partition)
	if err != nil {
		return 0, err
	}

	urlPrefix = strings.TrimRight(urlPrefix, "/")
	removed := 0
	for _, key := range keys {
		u := keyURL(key)
		if !strings.HasPrefix(u, urlPrefix) {
			continue
		}
		if rest := u[len(urlPrefix):]; rest != "" && rest[0] != '/' && rest[0] != '?' {
			continue
		}
		if err := s.Delete(ctx, partition, key); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		log.Debug().Str("partition", partition).Str("prefix", urlPrefix).Int("removed", removed).Msg("Cache entries invalidated")
	}
	return removed, nil
}

// Usage reports per-partition entry counts and sizes.
func (s *CacheStore) Usage(ctx context.Context) ([]model.PartitionUsage, error) {
	usage, err := s.repo.Usage(ctx)
	return usage, storageErr("cache usage", err)
}

// Sweep removes entries past their partition max age or explicit expiry and
// trims partitions above their entry cap. Persistent partitions are only trimmed.
func (s *CacheStore) Sweep(ctx context.Context, now time.Time) (CacheSweep, error) {
	var res CacheSweep
	for _, name := range s.order {
		p := s.policies[name]
		removed := 0

		if !p.Persistent && p.MaxAge > 0 {
			n, err := s.repo.DeleteExpired(ctx, name, now.Add(-p.MaxAge), now)
			if err != nil {
				return res, storageErr("cache sweep", err)
			}
			res.Expired += n
			removed += n
		}

		if p.MaxEntries > 0 {
			n, err := s.repo.TrimPartition(ctx, name, p.MaxEntries)
			if err != nil {
				return res, storageErr("cache trim", err)
			}
			res.Trimmed += n
			removed += n
		}

		if removed > 0 && s.hot != nil {
			s.hot.InvalidatePrefix(name + "\x00")
		}
	}
	return res, nil
}
