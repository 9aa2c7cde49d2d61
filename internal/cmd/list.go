package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/registry"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Long:  `Lists the project's active sessions with their ports. --all includes destroyed sessions that have not been pruned.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			var sessions []registry.Session
			if all {
				sessions, err = p.reg.ListAll(cmd.Context(), p.res.ProjectRoot)
			} else {
				sessions, err = p.reg.ListActive(cmd.Context(), p.res.ProjectRoot)
			}
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}

			fmt.Fprintf(out, "Sessions in %s\n", p.res.ProjectRoot)
			fmt.Fprintln(out)

			for i := range sessions {
				s := &sessions[i]

				marker := " "
				if p.res.Session != nil && p.res.Session.Row == s.Row {
					marker = "*"
				}

				state := green("active")
				if !s.Active() {
					state = red("destroyed " + s.DestroyedAt.Local().Format("2006-01-02 15:04"))
				} else if s.Mode == registry.ModeDocker {
					state = containerStatus(cmd.Context(), s)
				}

				fmt.Fprintf(out, "%s %s  %-8s %s\n", marker, bold(s.ID), s.Mode, state)
				if s.Branch != "" {
					fmt.Fprintf(out, "    Branch: %s\n", s.Branch)
				}
				fmt.Fprintf(out, "    Dir:    %s\n", s.Dir)

				if s.Active() {
					ports, err := p.manager.Ports(cmd.Context(), s)
					if err != nil {
						return err
					}
					if len(ports) > 0 {
						fmt.Fprintf(out, "    Ports:  %s\n", formatPorts(ports))
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include destroyed sessions")

	return cmd
}

func formatPorts(ports map[string]int) string {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, ports[name]))
	}
	return strings.Join(parts, " ")
}
