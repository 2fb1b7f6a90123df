package cli

import (
	"context"

	"github.com/guttosm/offline-sync/internal/app"
	"github.com/guttosm/offline-sync/internal/service"
)

// withEngine opens the configured store, builds an engine over it and runs
// fn. Background loops are never started; commands drive the engine directly.
func withEngine(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, engine *service.Engine) error) error {
	cfg := opts.Config()
	cfg.Log.Level = "warn"
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	app.InitializeLogger(cfg.Log)

	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() { _ = store.Close(context.WithoutCancel(ctx)) }()

	services, err := app.InitializeServices(cfg, store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize engine", err)
	}
	defer services.Close()
	defer services.Engine.Reconciler.Wait()

	return fn(ctx, services.Engine)
}
