package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bookshare-backend/internal/lending"
	"bookshare-backend/internal/users"
)

// NewSweepCommand persists Overdue on late PickedUp loans; reads derive it either way.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "sweep-overdue",
		Short:        "Mark picked-up loans past their due date as Overdue",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := open(rootOpts)
			if err != nil {
				return err
			}
			defer conn.Close()

			res, err := lending.NewService(conn, users.NewService(conn)).SweepOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d transaction(s) overdue\n", res.Marked)
			return nil
		},
	}
}
