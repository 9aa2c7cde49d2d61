package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/docker"
	"github.com/thatjpcsguy/lanes/internal/logging"
	"github.com/thatjpcsguy/lanes/internal/registry"
)

// NewInfoCmd creates the info command
func NewInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [id]",
		Short: "Show session info",
		Long:  `Shows the current session (or the session given by id): directory, branch, mode, ports and container state.`,
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
			ports, err := p.manager.Ports(cmd.Context(), s)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session: %s\n", bold(s.ID))
			fmt.Fprintf(out, "Project: %s\n", s.ProjectRoot)
			fmt.Fprintf(out, "Dir:     %s\n", s.Dir)
			fmt.Fprintf(out, "Branch:  %s\n", s.Branch)
			fmt.Fprintf(out, "Mode:    %s\n", s.Mode)
			if s.InPlace {
				fmt.Fprintln(out, "In place: yes")
			}
			fmt.Fprintf(out, "Created: %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if s.Mode == registry.ModeDocker {
				fmt.Fprintf(out, "Status:  %s\n", containerStatus(cmd.Context(), s))
			}
			printPorts(cmd, ports)
			return nil
		},
	}

	return cmd
}

// containerStatus asks the docker daemon for the session's containers.
// An unreachable daemon is reported as unknown.
func containerStatus(ctx context.Context, s *registry.Session) string {
	client, err := docker.NewStatusClient()
	if err != nil {
		logging.Logger().Debugf("docker unavailable: %v", err)
		return "unknown"
	}
	defer func() { _ = client.Close() }()

	st, err := client.ProjectStatus(ctx, docker.ProjectName(s.ProjectRoot, s.ID))
	if err != nil {
		logging.Logger().Debugf("docker status failed: %v", err)
		return "unknown"
	}

	switch st.String() {
	case "running":
		return green(st.String())
	case "down", "stopped":
		return yellow(st.String())
	default:
		return st.String()
	}
}
