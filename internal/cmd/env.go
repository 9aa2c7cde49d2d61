package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/dotenv"
)

// NewEnvCmd creates the env command
func NewEnvCmd() *cobra.Command {
	var (
		app   string
		write string
	)

	cmd := &cobra.Command{
		Use:   "env [id]",
		Short: "Print or write a session's environment",
		Long: `Prints the rendered environment of the current session (or the session
given by id) as KEY=VALUE lines. With --write the lines replace the given
file instead.`,
		Args: cobra.MaximumNArgs(1),
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

			env, err := p.manager.Env(cmd.Context(), s, app)
			if err != nil {
				return err
			}

			if write != "" {
				if err := dotenv.Write(write, env); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d variables to %s\n", len(env), write)
				return nil
			}

			for _, line := range dotenv.Lines(env) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&app, "app", "", "Layer this app's env over the global env")
	cmd.Flags().StringVar(&write, "write", "", "Write to this file instead of stdout")

	return cmd
}
