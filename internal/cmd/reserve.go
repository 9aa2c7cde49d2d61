package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, &session.ValidationError{Field: "port", Msg: fmt.Sprintf("%q is not between 1 and 65535", s)}
	}
	return port, nil
}

func withRegistry(fn func(reg *registry.Registry) error) error {
	reg, err := registry.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()
	return fn(reg)
}

// NewReserveCmd creates the reserve command
func NewReserveCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reserve <port>",
		Short: "Keep a port out of allocation",
		Long:  `Reserves a port so no session in any project is allocated it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return withRegistry(func(reg *registry.Registry) error {
				if err := reg.Reserve(cmd.Context(), port, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Reserved port %d\n", port)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the port is reserved")

	return cmd
}

// NewUnreserveCmd creates the unreserve command
func NewUnreserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unreserve <port>",
		Short: "Return a reserved port to allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return withRegistry(func(reg *registry.Registry) error {
				removed, err := reg.Unreserve(cmd.Context(), port)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Port %d was not reserved\n", port)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Unreserved port %d\n", port)
				return nil
			})
		},
	}
}

// NewReservationsCmd creates the reservations command
func NewReservationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reservations",
		Short: "List reserved ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(reg *registry.Registry) error {
				reservations, err := reg.Reservations(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(reservations) == 0 {
					fmt.Fprintln(out, "No reserved ports")
					return nil
				}
				for _, r := range reservations {
					reason := r.Reason
					if reason == "" {
						reason = "-"
					}
					fmt.Fprintf(out, "%-6d %s  %s\n", r.Port, r.CreatedAt.Local().Format("2006-01-02"), reason)
				}
				return nil
			})
		},
	}
}
