package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewPruneCmd creates the prune command
func NewPruneCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove orphaned and destroyed sessions",
		Long: `Marks sessions whose directory no longer exists as destroyed, deletes
destroyed sessions from the registry and runs 'git worktree prune'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := cmd.OutOrStdout()

			orphans, err := p.manager.Orphans(cmd.Context())
			if err != nil {
				return err
			}
			if len(orphans) > 0 {
				fmt.Fprintln(out, "Found orphaned sessions:")
				for _, s := range orphans {
					fmt.Fprintf(out, "  - %s %s\n", s.ID, red(fmt.Sprintf("(%s is missing)", s.Dir)))
				}
				fmt.Fprintln(out)

				if !yes {
					ok, err := confirm(cmd, "Prune these sessions?")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, "Aborted - no changes made")
						return nil
					}
				}
			}

			result, err := p.manager.Prune(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "✅ Prune complete! %d orphaned, %d removed from registry\n",
				len(result.Orphaned), result.Purged)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

// confirm asks a yes/no question on the terminal. Without a terminal it
// refuses, so scripts must pass --yes.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to prune without confirmation; pass --yes")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
