package cli

import (
	"context"
	"errors"
	"os"

	"github.com/dmitrijs2005/storekeeper/internal/client/config"
	"github.com/spf13/cobra"
)

// RootOptions is shared by every command.
type RootOptions struct {
	Config *config.Config
	// NewApp builds the App; tests may replace it.
	NewApp AppFactory
}

// NewRootCommand creates the storekeeper command tree. Without a
// subcommand it starts the interactive REPL.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	return newRootCommand(&RootOptions{Config: cfg, NewApp: NewApp})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cfg := opts.Config
	cmd := &cobra.Command{
		Use:   "storekeeper",
		Short: "Offline-first business records client",
		Long: `storekeeper keeps a local copy of the workspace's records, works without
a network connection and synchronizes with the backend when it is reachable.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          withApp(opts, runREPLCommand),
	}

	cfg.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewREPLCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewDiscardCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewUploadCommand(opts))
	cmd.AddCommand(NewDownloadCommand(opts))

	return cmd
}

// withApp builds the App for a command, runs fn and closes the App again.
func withApp(opts *RootOptions, fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := opts.NewApp(ctx, opts.Config, Streams{
			In:  cmd.InOrStdin(),
			Out: cmd.OutOrStdout(),
			Err: cmd.ErrOrStderr(),
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open local store", err)
		}
		defer func() {
			err = errors.Join(err, a.Close())
		}()
		return fn(ctx, a, args)
	}
}

func runREPLCommand(ctx context.Context, a *App, _ []string) error {
	return a.RunREPL(ctx)
}

func NewREPLCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "repl",
		Short:         "Interactive shell with background sync",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          withApp(opts, runREPLCommand),
	}
}

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull remote ones",
		Long: `Run one full sync of the active workspace and print the result as JSON.
The exit code is 1 unless the sync succeeded.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, _ []string) error {
			return a.Sync(ctx, !text)
		}),
	}
	cmd.Flags().BoolVar(&text, "text", false, "print a summary instead of JSON")
	return cmd
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show session, pending changes and last sync",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, _ []string) error {
			return a.Status(ctx)
		}),
	}
}

func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "pending",
		Short:         "List queued changes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, _ []string) error {
			return a.Pending(ctx)
		}),
	}
}

func NewDiscardCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "discard [item-id]",
		Short: "Drop a queued change, or all of them with --yes",
		Long: `Drop a queued change that cannot be pushed. Without an item id every
queued change of the workspace is dropped, which requires --yes. The
affected records keep their local contents.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return a.Discard(ctx, id, yes)
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm discarding every queued change")
	return cmd
}

func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with an API key",
		Long: `Authenticate --user in --workspace. The API key is read from --api-key,
STOREKEEPER_API_KEY or, failing both, the terminal.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, _ []string) error {
			if apiKey == "" {
				apiKey = os.Getenv(config.EnvPrefix + "API_KEY")
			}
			return a.Login(ctx, opts.Config.UserID, opts.Config.WorkspaceID, apiKey)
		}),
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	return cmd
}

func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	var discard bool
	cmd := &cobra.Command{
		Use:           "logout",
		Short:         "Forget the session tokens",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, _ []string) error {
			return a.Logout(ctx, discard)
		}),
	}
	cmd.Flags().BoolVar(&discard, "discard", false, "drop unsynced changes")
	return cmd
}

func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <table> [name=value...]",
		Short: "Create a record",
		Example: `  storekeeper add products sku=P100 name="Blue mug" price=9.5
  storekeeper add customers email=ann@example.com`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.Add(ctx, args[0], args[1:])
		}),
	}
}

func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "update <table> <id> name=value...",
		Short:         "Change fields of a record; name=null removes a field",
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.Update(ctx, args[0], args[1], args[2:])
		}),
	}
}

func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <table> <id>",
		Short:         "Delete a record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.Delete(ctx, args[0], args[1])
		}),
	}
}

func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <table> <id>",
		Short:         "Print a record as JSON",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.Get(ctx, args[0], args[1])
		}),
	}
}

func NewListCommand(opts *RootOptions) *cobra.Command {
	var lo ListOptions
	cmd := &cobra.Command{
		Use:   "list <table> [name=value...]",
		Short: "List records, optionally filtered by indexed fields",
		Example: `  storekeeper list products category=tools --order sku
  storekeeper list orders status=open --limit 20`,
		Aliases:       []string{"l", "ls"},
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.List(ctx, args[0], args[1:], lo)
		}),
	}
	cmd.Flags().StringVar(&lo.OrderBy, "order", "", "field to order by")
	cmd.Flags().BoolVar(&lo.Desc, "desc", false, "descending order")
	cmd.Flags().IntVar(&lo.Limit, "limit", 0, "maximum number of records")
	return cmd
}

func NewUploadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "upload <file>",
		Short:         "Store a file as an asset and print its path",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.Upload(ctx, args[0])
		}),
	}
}

func NewDownloadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "download <path> <file>",
		Short:         "Fetch an asset into a local file",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(opts, func(ctx context.Context, a *App, args []string) error {
			return a.Download(ctx, args[0], args[1])
		}),
	}
}
