package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSubmitCmd(c *cli) *cobra.Command {
	var (
		userID string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Ingest one envelope payload file for a user",
		Long: `Read a JSON array of {"type", "data"} metric envelopes and ingest it.

Small batches are written inline and the summary is printed. Batches over
the async thresholds are queued and the job id is printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			payload, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context())

			out, err := a.SubmitPayload(cmd.Context(), user, nil, payload)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of every metric in the payload")
	cmd.Flags().StringVarP(&file, "file", "f", "", "payload file")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
