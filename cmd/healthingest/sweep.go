package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete finished jobs past retention once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			st, err := a.Sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d finished jobs, failed %d stale jobs\n", st.Deleted, st.FailedStale)
			return nil
		},
	}
}
