package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/guttosm/offline-sync/internal/app"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const closeTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the offline sync gateway",
		Long: `Run the HTTP gateway together with the connectivity checker, the
reconciler and the janitor. The process stops cleanly on SIGINT or SIGTERM.

Examples:
  offline-sync serve
  offline-sync serve --port 9090 --storage sqlite --sqlite-path ./gateway.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "listen port override")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.Config()
	if opts.Port != "" {
		cfg.Server.Port = opts.Port
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	app.InitializeLogger(cfg.Log)

	a, err := app.InitializeApp(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize gateway", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	log.Info().
		Str("port", cfg.Server.Port).
		Str("remote", cfg.Remote.BaseURL).
		Str("storage", a.Store.Name()).
		Msg("Starting offline sync gateway")

	if err := a.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "gateway stopped", err)
	}
	log.Info().Msg("Gateway stopped")
	return nil
}
