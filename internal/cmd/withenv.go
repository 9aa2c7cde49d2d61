package cmd

import (
	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/inject"
	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

// NewWithEnvCmd creates the with-env command
func NewWithEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "with-env [app] -- <command> [args...]",
		Short: "Run a command with the session's environment",
		Long: `Runs a command with the current session's rendered environment merged over
the inherited one. Outside a session the command runs with the inherited
environment unchanged. The exit code is the command's.

Examples:
  lanes with-env -- npm run dev
  lanes with-env web -- go run ./cmd/server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, argv, err := splitCommand(args, cmd.ArgsLenAtDash())
			if err != nil {
				return err
			}

			cwd, err := session.Getwd()
			if err != nil {
				return err
			}
			regPath, err := registry.DefaultPath()
			if err != nil {
				return err
			}

			inj := inject.New(cwd, regPath)
			inj.Stdout = cmd.OutOrStdout()
			inj.Stderr = cmd.ErrOrStderr()

			code, err := inj.Run(cmd.Context(), argv[0], argv[1:], app)
			if err != nil || code != 0 {
				return &ExitError{Code: code, Err: err}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)

	return cmd
}

// splitCommand separates the optional app name from the command. dashAt is
// the number of args before "--", or -1 when cobra saw none.
func splitCommand(args []string, dashAt int) (string, []string, error) {
	if dashAt < 0 {
		for i, a := range args {
			if a == "--" {
				dashAt = i
				args = append(args[:i:i], args[i+1:]...)
				break
			}
		}
	}

	var app string
	var argv []string
	switch {
	case dashAt < 0:
		argv = args
	case dashAt == 0:
		argv = args
	case dashAt == 1:
		app, argv = args[0], args[1:]
	default:
		return "", nil, &session.ValidationError{Msg: "with-env takes at most one app name before --"}
	}

	if len(argv) == 0 {
		return "", nil, &session.ValidationError{Msg: "no command given; usage: lanes with-env [app] -- <command> [args...]"}
	}
	return app, argv, nil
}
