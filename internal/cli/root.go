// Package cli implements the offline-sync command line: the gateway server
// and the operator commands that inspect and drive its local store.
package cli

import (
	"fmt"
	"slices"

	"github.com/guttosm/offline-sync/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Overrides applied on top of the environment configuration.
	Storage    string
	SQLitePath string
	RemoteURL  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the offline-sync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "offline-sync",
		Short: "Offline-first sync gateway",
		Long: `offline-sync sits between a client application and its remote API.

Reads are cached and served locally when the remote is unreachable, writes
are queued and replayed once connectivity returns. The serve command runs
the gateway; the other commands operate on its local store.

Configuration is read from the environment (PORT, REMOTE_BASE_URL,
STORAGE_DRIVER, SQLITE_PATH, ...). Global flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Storage, "storage", "", "storage driver override (memory|sqlite|mongodb)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "", "SQLite database path override")
	cmd.PersistentFlags().StringVar(&opts.RemoteURL, "remote", "", "remote API base URL override")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))

	return cmd
}

// Config loads the environment configuration and applies the flag overrides.
func (o *RootOptions) Config() config.Config {
	cfg := config.Load()
	if o.Storage != "" {
		cfg.Storage.Driver = o.Storage
	}
	if o.SQLitePath != "" {
		cfg.Storage.SQLitePath = o.SQLitePath
	}
	if o.RemoteURL != "" {
		cfg.Remote.BaseURL = o.RemoteURL
	}
	return cfg
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
