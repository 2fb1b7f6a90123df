package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/guttosm/offline-sync/config"
	"github.com/guttosm/offline-sync/internal/circuitbreaker"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service"
	"github.com/guttosm/offline-sync/internal/service/cache"
	"github.com/rs/zerolog/log"
)

const hotCacheShards = 16

// ServiceComponents holds the engine and the remote client it talks through.
type ServiceComponents struct {
	Engine  *service.Engine
	Remote  *remote.Client
	Breaker *circuitbreaker.CircuitBreaker
	hot     *service.ShardedCache
}

// Close stops background goroutines owned by the components.
func (s *ServiceComponents) Close() {
	if s.hot != nil {
		s.hot.Stop()
	}
}

// InitializeServices builds the remote client and the offline engine over store.
func InitializeServices(cfg config.Config, store repository.Store) (*ServiceComponents, error) {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Remote.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.Remote.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.Remote.CircuitBreakerTimeout,
		Name:             "remote-api",
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState(name, int(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	metrics.SetCircuitBreakerState(breaker.Name(), int(breaker.State()))

	// The monitor does not exist until the engine is built; the client
	// reports reachability through this indirection.
	var engine *service.Engine
	client, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout,
		remote.WithCircuitBreaker(breaker),
		remote.WithAPIPrefix(cfg.Remote.APIPrefix),
		remote.WithHealthPath(cfg.Remote.HealthPath),
		remote.WithReachability(func(online bool) {
			if engine != nil {
				engine.Monitor.SetOnline(online)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	var hot cache.CacheWithMetrics
	var sharded *service.ShardedCache
	if cfg.Cache.HotSize > 0 {
		sharded = service.NewShardedCache(cfg.Cache.HotSize, cfg.Cache.HotTTL, hotCacheShards)
		hot = sharded
	}

	engine = service.NewEngine(EngineConfig(cfg, client.Resolve), store, client, hot)

	return &ServiceComponents{
		Engine:  engine,
		Remote:  client,
		Breaker: breaker,
		hot:     sharded,
	}, nil
}

// EngineConfig maps application configuration onto the engine's settings.
func EngineConfig(cfg config.Config, resolve func(string) string) service.EngineConfig {
	return service.EngineConfig{
		APIPrefix:      cfg.Remote.APIPrefix,
		Resolve:        resolve,
		NetworkTimeout: cfg.Cache.NetworkTimeout,
		Policies:       service.DefaultPolicies(cfg.Cache.MaxAge, cfg.Cache.ImageMaxEntries),
		MaxRetries:     cfg.Sync.MaxRetries,
		Backoff:        service.Backoff{Base: cfg.Sync.BaseDelay, Max: cfg.Sync.MaxDelay},
		CheckInterval:  cfg.Sync.CheckInterval,
		Reconciler: service.ReconcilerConfig{
			Interval:      cfg.Sync.Interval,
			Rate:          cfg.Sync.Rate,
			ServerIDPaths: cfg.Remote.ServerIDPaths,
		},
		Janitor: service.JanitorConfig{
			Interval:           cfg.Janitor.Interval,
			CompletedRetention: cfg.Janitor.CompletedRetention,
			FailedRetention:    cfg.Janitor.FailedRetention,
			CriticalURLs:       cfg.Janitor.CriticalURLs,
		},
	}
}
