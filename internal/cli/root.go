package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	workspaceDir string
	outputJSON   bool
	verbose      bool
	untrusted    bool
)

// Execute runs the root cobra command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pefmt",
		Short:         "Run prettier, then eslint --fix, over JavaScript and friends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace", "", "Workspace root (defaults to the nearest folder with .pefmt.yaml, package.json or .git)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror the log to stderr")
	cmd.PersistentFlags().BoolVar(&untrusted, "untrusted", false, "Treat the workspace as untrusted")

	cmd.AddCommand(newFormatCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newDaemonsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}
