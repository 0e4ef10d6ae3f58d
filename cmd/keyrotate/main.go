package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systmms/keyrotate/cmd/keyrotate/commands"
	kerrors "github.com/systmms/keyrotate/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(commands.NewState()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", kerrors.SimplifyError(err))
		stop()
		os.Exit(1)
	}
}

func newRootCommand(state *commands.State) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keyrotate",
		Short: "Rotate IAM access keys stored in Secrets Manager or Parameter Store",
		Long: `keyrotate issues, validates, promotes and revokes the access key of one
IAM user, keeping the key in a versioned secret. It runs either as the
secret's rotation Lambda or from the command line.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.Init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.ConfigPath, "config", os.Getenv("KEYROTATE_CONFIG"), "Config file path")
	rootCmd.PersistentFlags().BoolVar(&state.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&state.Debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&state.LogFormat, "log-format", "", "Log format: console, json")

	rootCmd.AddCommand(
		commands.NewRunCommand(state),
		commands.NewRotateCommand(state),
		commands.NewStatusCommand(state),
		commands.NewInitCommand(state),
		commands.NewLambdaCommand(state),
	)

	return rootCmd
}
