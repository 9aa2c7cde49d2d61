package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/lifecycle"
	"github.com/thatjpcsguy/lanes/internal/registry"
)

// NewCreateCmd creates the create command
func NewCreateCmd() *cobra.Command {
	var (
		branch  string
		inPlace bool
		mode    string
	)

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create a session",
		Long: `Creates a session: a git worktree under the sessions directory, a set of
ports reserved for it in the registry, a .env file, and (in docker mode) its
containers. Without an id the smallest free id is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lifecycle.CreateOptions{Branch: branch, InPlace: inPlace}
			if len(args) == 1 {
				opts.ID = args[0]
			}
			if mode != "" {
				m, err := registry.ParseMode(mode)
				if err != nil {
					return err
				}
				opts.Mode = m
			}

			if err := checkID(args); err != nil {
				return err
			}

			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			created, err := p.manager.Create(cmd.Context(), opts)
			if err != nil {
				return err
			}

			s := created.Session
			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintf(out, "✅ Session %s created\n", green(s.ID))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "📂 Directory: %s\n", s.Dir)
			if s.Branch != "" {
				fmt.Fprintf(out, "🌿 Branch:    %s\n", s.Branch)
			}
			fmt.Fprintf(out, "⚙️  Mode:      %s\n", s.Mode)
			printPorts(cmd, created.Ports)
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to check out (default: <branch_prefix><id>)")
	cmd.Flags().BoolVar(&inPlace, "in-place", false, "Use the project checkout instead of a new worktree")
	cmd.Flags().StringVar(&mode, "mode", "", "Session mode: docker or native (default from config)")

	return cmd
}

func printPorts(cmd *cobra.Command, ports map[string]int) {
	if len(ports) == 0 {
		return
	}

	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "📍 Ports:")
	for _, name := range names {
		fmt.Fprintf(out, "   %-12s %d\n", name, ports[name])
	}
}
