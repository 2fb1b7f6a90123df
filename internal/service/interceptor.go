package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guttosm/offline-sync/internal/domain/dto"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/rs/zerolog/log"
)

// Headers set on responses produced by the gateway rather than the remote.
const (
	HeaderOfflineQueued   = "X-Offline-Queued"
	HeaderOfflineActionID = "X-Offline-Action-Id"
	HeaderOfflineTempID   = "X-Offline-Temp-Id"
	HeaderOfflineFallback = "X-Offline-Fallback"
	HeaderIdempotencyKey  = remote.IdempotencyHeader
)

// InterceptorConfig configures an Interceptor.
type InterceptorConfig struct {
	// NetworkTimeout bounds the network attempt of network-first reads.
	NetworkTimeout time.Duration
	// Resolve turns a request path into the absolute remote URL used in cache keys.
	Resolve func(string) string
}

// Interceptor applies the per-class strategy to every outbound request.
type Interceptor struct {
	classifier *Classifier
	cache      *CacheStore
	queue      *MutationQueue
	remote     Fetcher
	monitor    *ConnectivityMonitor
	timeout    time.Duration
	resolve    func(string) string
	onQueued   func()
}

// NewInterceptor wires an interceptor.
func NewInterceptor(cfg InterceptorConfig, classifier *Classifier, cacheStore *CacheStore, queue *MutationQueue, fetcher Fetcher, monitor *ConnectivityMonitor) *Interceptor {
	timeout := cfg.NetworkTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	resolve := cfg.Resolve
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	return &Interceptor{
		classifier: classifier,
		cache:      cacheStore,
		queue:      queue,
		remote:     fetcher,
		monitor:    monitor,
		timeout:    timeout,
		resolve:    resolve,
	}
}

// OnQueued registers fn to run after a mutation has been queued.
func (i *Interceptor) OnQueued(fn func()) {
	i.onQueued = fn
}

// Classify exposes the classification of req.
func (i *Interceptor) Classify(req *model.Request) RequestClass {
	return i.classifier.Classify(req)
}

// Handle serves req according to its class. A returned error means there is
// no response to give: a *CacheMissError or *remote.NetworkError when the
// remote is unreachable and nothing usable is cached, a *StorageError when
// a mutation could not be queued, or ErrUnresolvedTempID when a mutation
// targets a temp id no queued CREATE accounts for.
func (i *Interceptor) Handle(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}

	class := i.classifier.Classify(req)
	switch class {
	case ClassMutation:
		return i.handleMutation(ctx, req)
	case ClassAPIRead:
		return i.networkFirst(ctx, class, req, model.PartitionData)
	case ClassNavigation:
		return i.networkFirst(ctx, class, req, model.PartitionRuntime)
	case ClassImage:
		return i.cacheFirst(ctx, class, req, model.PartitionImage, model.PartitionImage)
	case ClassStatic:
		return i.cacheFirst(ctx, class, req, model.PartitionRuntime, model.PartitionPrecache, model.PartitionRuntime)
	default:
		resp, err := i.remote.Fetch(ctx, req)
		if err != nil {
			metrics.RecordInterception(string(class), "error")
			return nil, err
		}
		metrics.RecordInterception(string(class), "passthrough")
		return resp, nil
	}
}

func (i *Interceptor) cacheKey(req *model.Request) (string, string) {
	abs := i.resolve(req.URL)
	return Key(req.Method, abs, ""), abs
}

func (i *Interceptor) networkFirst(ctx context.Context, class RequestClass, req *model.Request, partition string) (*model.Response, error) {
	key, abs := i.cacheKey(req)

	fetchCtx, cancel := context.WithTimeout(ctx, i.timeout)
	resp, fetchErr := i.remote.Fetch(fetchCtx, req)
	cancel()

	if fetchErr == nil {
		if resp.OK() {
			i.store(ctx, partition, abs, req.Method, resp)
			metrics.RecordInterception(string(class), "network")
			return resp, nil
		}
		if resp.Status < http.StatusInternalServerError {
			metrics.RecordInterception(string(class), "network")
			return resp, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if cached := i.lookup(ctx, key, partition); cached != nil {
		log.Debug().Str("class", string(class)).Str("key", key).Msg("Serving cached response")
		metrics.RecordInterception(string(class), "cache")
		return cached, nil
	}

	if class == ClassNavigation {
		metrics.RecordInterception(string(class), "offline_page")
		return offlinePageResponse(), nil
	}
	if fetchErr == nil {
		metrics.RecordInterception(string(class), "network")
		return resp, nil
	}

	metrics.RecordInterception(string(class), "miss")
	return nil, &CacheMissError{Key: key, Err: fetchErr}
}

func (i *Interceptor) cacheFirst(ctx context.Context, class RequestClass, req *model.Request, storeIn string, lookIn ...string) (*model.Response, error) {
	key, abs := i.cacheKey(req)

	if cached := i.lookup(ctx, key, lookIn...); cached != nil {
		metrics.RecordInterception(string(class), "cache")
		return cached, nil
	}

	resp, err := i.remote.Fetch(ctx, req)
	if err != nil {
		if class == ClassImage && ctx.Err() == nil {
			metrics.RecordInterception(string(class), "placeholder")
			return placeholderImageResponse(), nil
		}
		metrics.RecordInterception(string(class), "error")
		return nil, err
	}

	if resp.OK() {
		i.store(ctx, storeIn, abs, req.Method, resp)
	}
	metrics.RecordInterception(string(class), "network")
	return resp, nil
}

// lookup returns a cached response marked as a fallback, or nil. Storage
// failures are logged and treated as misses.
func (i *Interceptor) lookup(ctx context.Context, key string, partitions ...string) *model.Response {
	e, err := i.cache.Match(ctx, key, partitions...)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Error().Err(err).Str("key", key).Msg("Cache lookup failed")
		}
		return nil
	}
	resp := e.Response()
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(HeaderOfflineFallback, "cache")
	return resp
}

func (i *Interceptor) store(ctx context.Context, partition, abs, method string, resp *model.Response) {
	if _, err := i.cache.StoreResponse(ctx, partition, method, abs, resp); err != nil {
		log.Warn().Err(err).Str("partition", partition).Str("url", abs).Msg("Failed to cache response")
	}
}

func (i *Interceptor) handleMutation(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req.Header.Get(HeaderIdempotencyKey) == "" {
		req.Header.Set(HeaderIdempotencyKey, uuid.NewString())
	}
	kind, entityID := i.classifier.ParseEntity(req.URL)

	queueFirst := false
	if IsTempID(entityID) {
		serverID, waiting, err := i.queue.ResolveTempID(ctx, entityID)
		if err != nil {
			metrics.RecordInterception(string(ClassMutation), "error")
			return nil, err
		}
		if waiting {
			queueFirst = true
		} else {
			log.Debug().Str("temp_id", entityID).Str("server_id", serverID).Msg("Resolved temp id of synced entity")
			rewriteRequestTempID(req, entityID, serverID)
			entityID = serverID
		}
	}
	if !queueFirst {
		outstanding, err := i.queue.HasOutstanding(ctx, kind, entityID)
		if err != nil {
			// Queued replay keeps per-entity order even when the check fails.
			log.Warn().Err(err).Str("kind", kind).Msg("Could not check queued actions for entity, queueing mutation")
			outstanding = true
		}
		queueFirst = outstanding
	}

	if !queueFirst {
		resp, err := i.remote.Fetch(ctx, req)
		if err == nil {
			if resp.OK() {
				i.invalidateCollection(ctx, kind)
			}
			metrics.RecordInterception(string(ClassMutation), "network")
			return resp, nil
		}
		if !remote.IsNetworkError(err) || ctx.Err() != nil {
			metrics.RecordInterception(string(ClassMutation), "error")
			return nil, err
		}
		log.Info().Err(err).Str("method", req.Method).Str("url", req.URL).Msg("Remote unreachable, queueing mutation")
	}

	return i.enqueue(ctx, req, kind, entityID)
}

func (i *Interceptor) enqueue(ctx context.Context, req *model.Request, kind, entityID string) (*model.Response, error) {
	header := req.Header.Clone()
	header.Del(HeaderIdempotencyKey)

	action := &model.QueuedAction{
		Type:           ActionType(req.Method),
		Kind:           kind,
		EntityID:       entityID,
		Method:         strings.ToUpper(req.Method),
		Path:           requestRelative(req.URL),
		Header:         header,
		Payload:        append([]byte(nil), req.Body...),
		IdempotencyKey: req.Header.Get(HeaderIdempotencyKey),
	}
	if action.Type == model.ActionCreate && entityID == "" {
		action.TempID = NewTempID()
	}

	stored, err := i.queue.Enqueue(ctx, action)
	if err != nil {
		metrics.RecordInterception(string(ClassMutation), "error")
		return nil, err
	}
	metrics.RecordInterception(string(ClassMutation), "queued")

	if i.onQueued != nil && i.monitor != nil && i.monitor.Online() {
		i.onQueued()
	}

	body, err := json.Marshal(dto.NewQueuedAck())
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set(HeaderOfflineQueued, "true")
	h.Set(HeaderOfflineActionID, stored.ID)
	if stored.TempID != "" {
		h.Set(HeaderOfflineTempID, stored.TempID)
	}
	return &model.Response{Status: http.StatusAccepted, Header: h, Body: body}, nil
}

func (i *Interceptor) invalidateCollection(ctx context.Context, kind string) {
	if kind == "" {
		return
	}
	prefix := i.resolve(i.classifier.CollectionPath(kind))
	if _, err := i.cache.InvalidatePrefix(ctx, model.PartitionData, prefix); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Failed to invalidate cached collection")
	}
}
