package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/guttosm/offline-sync/internal/service"
	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache, queue and storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				engine.Reconciler.RestoreLastSync(ctx)
				stats, err := engine.Stats(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read stats", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(stats, func(w io.Writer) {
					fmt.Fprintf(w, "Cached items:\t%d\n", stats.CachedItems)
					fmt.Fprintf(w, "Pending actions:\t%d\n", stats.PendingActions)
					fmt.Fprintf(w, "Failed actions:\t%d\n", stats.FailedActions)
					fmt.Fprintf(w, "Storage bytes:\t%d\n", stats.StorageBytes)
					last := "never"
					if stats.LastSyncAt != nil {
						last = stats.LastSyncAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "Last sync:\t%s\n", last)
					for _, p := range stats.Partitions {
						fmt.Fprintf(w, "  %s\t%d entries\t%d bytes\n", p.Partition, p.Entries, p.Bytes)
					}
				})
			})
		},
	}
}
