package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/lifecycle"
)

// NewStartCmd creates the start command
func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [id]",
		Short: "Start a session's containers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkID(args); err != nil {
				return err
			}

			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			id, err := p.sessionID(args)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "🚀 Starting containers for session %s...\n", id)
			if err := p.manager.Start(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Containers started")
			return nil
		},
	}
}

// NewStopCmd creates the stop command
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [id]",
		Short: "Stop a session's containers",
		Long:  `Stops the session's containers. The session keeps its worktree and ports.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkID(args); err != nil {
				return err
			}

			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			id, err := p.sessionID(args)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "🛑 Stopping containers for session %s...\n", id)
			if err := p.manager.Stop(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Containers stopped")
			return nil
		},
	}
}

// NewLogsCmd creates the logs command
func NewLogsCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs [id]",
		Short: "View logs for a session's containers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkID(args); err != nil {
				return err
			}

			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			s, err := p.current(cmd.Context(), args)
			if err != nil {
				return err
			}

			services := lifecycle.NewComposeServices(p.cfg.ComposeFile)
			services.Stdout = cmd.OutOrStdout()
			services.Stderr = cmd.ErrOrStderr()
			return services.Logs(cmd.Context(), s, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")

	return cmd
}
