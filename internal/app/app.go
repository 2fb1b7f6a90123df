// Package app wires configuration, storage, the offline engine and the HTTP
// gateway into a runnable application.
package app

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/config"
	"github.com/guttosm/offline-sync/internal/http"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// App is a fully wired gateway.
type App struct {
	Config   config.Config
	Store    repository.Store
	Services *ServiceComponents
	Router   *gin.Engine
}

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context, cfg config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	services, err := InitializeServices(cfg, store)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	rc := InitializeRouter(services, cfg)
	router := http.NewRouter(rc.Proxy, rc.Admin, rc.HealthHandler, rc.Config)

	return &App{
		Config:   cfg,
		Store:    store,
		Services: services,
		Router:   router,
	}, nil
}

// Engine returns the offline engine.
func (a *App) Engine() *service.Engine {
	return a.Services.Engine
}

// Run serves HTTP and drives the engine's background loops until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Engine().Run(gctx) })
	g.Go(func() error { return NewServer(a.Router, a.Config.Server.Port).Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store and background goroutines.
func (a *App) Close(ctx context.Context) error {
	a.Services.Close()
	if err := a.Store.Close(ctx); err != nil {
		log.Error().Err(err).Str("store", a.Store.Name()).Msg("Failed to close store")
		return err
	}
	return nil
}
