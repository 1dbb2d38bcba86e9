package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ladvien/self-sensored-sub003/internal/data/db"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create job, raw ingestion and metric tables",
		Long: `Create every table and index the engine needs. Metric tables are
rendered from the embedded catalog and carry the UNIQUE constraint the
upsert conflicts on. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			if err := db.Migrate(a.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
