package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/service"
	"github.com/spf13/cobra"
)

// SyncReport is the outcome of the sync command.
type SyncReport struct {
	Online  bool               `json:"online"`
	Pass    service.PassResult `json:"pass"`
	Pending int                `json:"pending"`
	Failed  int                `json:"failed"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued mutations against the remote API",
		Long: `Check the remote API and, when it is reachable, replay every eligible
queued mutation once in enqueue order.

Exit codes:
  0 - The pass ran
  1 - The remote API is unreachable
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				report, err := runSync(ctx, engine)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(report, func(w io.Writer) {
					fmt.Fprintf(w, "Attempted:\t%d\n", report.Pass.Attempted)
					fmt.Fprintf(w, "Completed:\t%d\n", report.Pass.Completed)
					fmt.Fprintf(w, "Retried:\t%d\n", report.Pass.Retried)
					fmt.Fprintf(w, "Failed:\t%d\n", report.Pass.Failed)
					fmt.Fprintf(w, "Still pending:\t%d\n", report.Pending)
					fmt.Fprintf(w, "Failed total:\t%d\n", report.Failed)
				})
			})
		},
	}
}

func runSync(ctx context.Context, engine *service.Engine) (SyncReport, error) {
	if _, err := engine.Queue.RecoverInFlight(ctx); err != nil {
		return SyncReport{}, WrapExitError(ExitCommandError, "failed to recover interrupted actions", err)
	}
	if !engine.Monitor.Check(ctx) {
		return SyncReport{}, NewExitError(ExitFailure, "remote API unreachable")
	}

	// Coming online starts a reconnect pass; let it finish before the manual
	// one so the two never overlap.
	engine.Reconciler.Wait()

	report := SyncReport{Online: true}
	res, err := engine.Reconciler.RunPass(ctx)
	if err != nil && !errors.Is(err, service.ErrPassInProgress) {
		return report, WrapExitError(ExitCommandError, "sync pass failed", err)
	}
	report.Pass = res

	counts, err := engine.Queue.Counts(ctx)
	if err != nil {
		return report, WrapExitError(ExitCommandError, "failed to count actions", err)
	}
	report.Pending = counts[model.StatusPending] + counts[model.StatusSyncing]
	report.Failed = counts[model.StatusFailed]
	return report, nil
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one janitor sweep over the local store",
		Long: `Expire stale cache entries, trim partitions to their bounds and purge
finished actions past their retention. With --refresh the remote API is
checked first so critical URLs are re-fetched when it is reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				if refresh {
					engine.Monitor.Check(ctx)
				}
				res, err := engine.Janitor.Sweep(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "sweep failed", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "Expired entries:\t%d\n", res.ExpiredEntries)
					fmt.Fprintf(w, "Trimmed entries:\t%d\n", res.TrimmedEntries)
					fmt.Fprintf(w, "Purged completed:\t%d\n", res.PurgedCompleted)
					fmt.Fprintf(w, "Purged failed:\t%d\n", res.PurgedFailed)
					if refresh {
						fmt.Fprintf(w, "Refreshed:\t%d (%d failed)\n", res.Refreshed, res.RefreshFailed)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "check the remote and refresh critical URLs")

	return cmd
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached response and queued action",
		Long: `Delete every cached response and every queued action, including
mutations that were never replayed. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to clear offline data without --yes")
			}
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				res, err := engine.ClearAll(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "clear failed", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %d cache entries and %d actions.\n", res.CacheEntries, res.Actions)
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")

	return cmd
}
