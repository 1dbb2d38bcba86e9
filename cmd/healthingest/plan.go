package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
)

func newPlanCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate the configuration and print the effective chunk plan",
		Long: `Validate the configuration without connecting to anything and print,
per metric type, the parameters one row binds, the largest chunk the
parameter budget allows and the chunk size actually used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			planner, err := c.cfg.Planner()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(planner.Table())
			}
			return writePlan(cmd.OutOrStdout(), planner)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}

func writePlan(out io.Writer, p *ingest.Planner) error {
	fmt.Fprintf(out, "safe parameter limit: %d\n\n", p.SafeParamLimit())
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tTABLE\tPARAMS/ROW\tMAX ROWS\tCHUNK SIZE")
	for _, row := range p.Table() {
		size := fmt.Sprint(row.ChunkSize)
		if row.Overridden {
			size += " (override)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", row.Type, row.Table, row.ParamsPerRecord, row.MaxRecords, size)
	}
	return tw.Flush()
}
