package app

import (
	"context"
	"fmt"

	"github.com/guttosm/offline-sync/config"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/rs/zerolog/log"
)

// OpenStore opens the durable storage adapter selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory storage, offline data will not survive a restart")
		return repository.NewMemoryStore(), nil

	case config.StorageSQLite, "":
		store, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite store")
		return store, nil

	case config.StorageMongoDB:
		db, err := repository.NewMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("Connected to MongoDB")
		return repository.NewMongoStore(db), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
