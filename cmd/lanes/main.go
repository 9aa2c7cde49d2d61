package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/cmd"
	"github.com/thatjpcsguy/lanes/internal/logging"
)

var version = "0.1.0"

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "lanes",
		Short: "Isolated development sessions with their own ports",
		Long: `Lanes runs several isolated development sessions of one repository side by
side. Each session gets its own git worktree and its own TCP ports, recorded
in a registry shared by every project on the machine, so sessions never
collide.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(c *cobra.Command, args []string) {
			logging.Setup(verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(cmd.NewCreateCmd())
	rootCmd.AddCommand(cmd.NewWithEnvCmd())
	rootCmd.AddCommand(cmd.NewEnvCmd())
	rootCmd.AddCommand(cmd.NewInfoCmd())
	rootCmd.AddCommand(cmd.NewListCmd())
	rootCmd.AddCommand(cmd.NewDestroyCmd())
	rootCmd.AddCommand(cmd.NewPruneCmd())
	rootCmd.AddCommand(cmd.NewStartCmd())
	rootCmd.AddCommand(cmd.NewStopCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewHooksCmd())
	rootCmd.AddCommand(cmd.NewReserveCmd())
	rootCmd.AddCommand(cmd.NewUnreserveCmd())
	rootCmd.AddCommand(cmd.NewReservationsCmd())

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err != nil {
				fmt.Fprintln(os.Stderr, "Error:", cmd.Describe(exitErr.Err))
			}
			os.Exit(exitErr.Code)
		}

		fmt.Fprintln(os.Stderr, "Error:", cmd.Describe(err))
		os.Exit(1)
	}
}
