package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/hooks"
)

// NewHooksCmd creates the hooks command
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks <hook-name> [id]",
		Short: "Manually run session hooks",
		Long: `Manually execute a session hook with the session's environment.

Available hooks:
  setup     - Runs after a session is created
  teardown  - Runs before a session is destroyed

A file at .lanes-hooks/<hook-name>.sh in the session directory takes
priority over the commands listed in the config.

Examples:
  lanes hooks setup
  lanes hooks teardown 002`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hookType hooks.HookType
			switch args[0] {
			case string(hooks.Setup):
				hookType = hooks.Setup
			case string(hooks.Teardown):
				hookType = hooks.Teardown
			default:
				return fmt.Errorf("invalid hook name: %s. Valid options: setup, teardown", args[0])
			}

			if err := checkID(args[1:]); err != nil {
				return err
			}

			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			s, err := p.current(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			env, err := p.manager.Env(cmd.Context(), s, "")
			if err != nil {
				return err
			}

			scripts := p.cfg.Setup
			if hookType == hooks.Teardown {
				scripts = p.cfg.Teardown
			}

			runner := &hooks.Runner{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
			fmt.Fprintf(cmd.OutOrStdout(), "🪝 Running %s hook for session %s...\n", hookType, s.ID)
			return runner.Run(cmd.Context(), hookType, s.Dir, scripts, env)
		},
	}

	return cmd
}
