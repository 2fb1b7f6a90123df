package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service"
	"github.com/spf13/cobra"
)

// NewQueueCommand creates the queue command and its subcommands.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued mutations",
	}

	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueGetCommand(rootOpts))
	cmd.AddCommand(newQueueRetryCommand(rootOpts))
	cmd.AddCommand(newQueueDeleteCommand(rootOpts))

	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued actions in replay order",
		Long: `List queued actions in replay order.

Examples:
  offline-sync queue list
  offline-sync queue list --status failed --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]model.ActionStatus, 0, len(statuses))
			for _, s := range statuses {
				st := model.ActionStatus(s)
				if !st.Valid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be one of %v", s, model.AllStatuses))
				}
				filter = append(filter, st)
			}

			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				actions, err := engine.Queue.List(ctx, filter...)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list actions", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(actions, func(w io.Writer) {
					if len(actions) == 0 {
						fmt.Fprintln(w, "No queued actions.")
						return
					}
					fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tMETHOD\tPATH\tRETRIES\tENQUEUED")
					for _, a := range actions {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
							a.ID, a.Status, a.Type, a.Method, a.Path,
							a.RetryCount, a.MaxRetries, a.EnqueuedAt.Format(time.RFC3339))
					}
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (pending|syncing|completed|failed), repeatable")

	return cmd
}

func newQueueGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one queued action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				action, err := engine.Queue.Get(ctx, args[0])
				if err != nil {
					return actionError(args[0], err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(action, func(w io.Writer) {
					printAction(w, action)
				})
			})
		},
	}
}

func newQueueRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a failed action with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				action, err := engine.Queue.Retry(ctx, args[0])
				if err != nil {
					return actionError(args[0], err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(action, func(w io.Writer) {
					fmt.Fprintf(w, "Action %s re-queued.\n", action.ID)
				})
			})
		},
	}
}

func newQueueDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a queued action without replaying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), rootOpts, func(ctx context.Context, engine *service.Engine) error {
				if err := engine.Queue.Delete(ctx, args[0]); err != nil {
					return actionError(args[0], err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Action %s deleted.\n", args[0])
				})
			})
		},
	}
}

func actionError(id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return WrapExitError(ExitCommandError, fmt.Sprintf("action %s not found", id), err)
	case errors.Is(err, service.ErrInvalidTransition):
		return WrapExitError(ExitFailure, fmt.Sprintf("action %s cannot be changed", id), err)
	default:
		return WrapExitError(ExitCommandError, fmt.Sprintf("action %s", id), err)
	}
}

func printAction(w io.Writer, a *model.QueuedAction) {
	fmt.Fprintf(w, "ID:\t%s\n", a.ID)
	fmt.Fprintf(w, "Status:\t%s\n", a.Status)
	fmt.Fprintf(w, "Type:\t%s\n", a.Type)
	fmt.Fprintf(w, "Kind:\t%s\n", a.Kind)
	fmt.Fprintf(w, "Request:\t%s %s\n", a.Method, a.Path)
	if a.TempID != "" {
		fmt.Fprintf(w, "Temp ID:\t%s\n", a.TempID)
	}
	if a.ServerID != "" {
		fmt.Fprintf(w, "Server ID:\t%s\n", a.ServerID)
	}
	fmt.Fprintf(w, "Idempotency key:\t%s\n", a.IdempotencyKey)
	fmt.Fprintf(w, "Retries:\t%d/%d\n", a.RetryCount, a.MaxRetries)
	if a.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", a.LastError)
	}
	fmt.Fprintf(w, "Enqueued:\t%s\n", a.EnqueuedAt.Format(time.RFC3339))
	if !a.NextAttemptAt.IsZero() {
		fmt.Fprintf(w, "Next attempt:\t%s\n", a.NextAttemptAt.Format(time.RFC3339))
	}
}
