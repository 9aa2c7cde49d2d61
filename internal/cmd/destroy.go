package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDestroyCmd creates the destroy command
func NewDestroyCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "destroy [id]",
		Short: "Destroy a session",
		Long: `Stops the session's containers, removes its worktree and releases its ports.
Failures stopping containers or removing the worktree are reported as
warnings and do not stop the session from being marked destroyed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all cannot be combined with a session id")
			}

			if err := checkID(args); err != nil {
				return err
			}

			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := cmd.OutOrStdout()

			if all {
				destroyed, err := p.manager.DestroyAll(cmd.Context())
				for _, id := range destroyed {
					fmt.Fprintf(out, "  ✓ Destroyed session %s\n", id)
				}
				if err != nil {
					return err
				}
				if len(destroyed) == 0 {
					fmt.Fprintln(out, "No active sessions")
				}
				return nil
			}

			id, err := p.sessionID(args)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "🛑 Destroying session %s...\n", id)
			if err := p.manager.Destroy(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Session %s destroyed\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Destroy every active session in the project")

	return cmd
}
