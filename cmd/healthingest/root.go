package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ladvien/self-sensored-sub003/internal/app"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

// cli carries what PersistentPreRunE resolves for the subcommands.
type cli struct {
	configPath string
	cfg        app.Config
	log        *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "healthingest",
		Short: "Health metric batch ingestion engine",
		Long: `healthingest writes health metric batches to Postgres.

Batches are deduplicated, split into chunks that fit the bind-parameter
limit and written concurrently with retry. Oversized batches go to a
background job queue drained by the worker pool.

Configuration comes from defaults, the optional --config file and the
environment, in that order of precedence from lowest to highest. Nested
keys map to upper-case variables: batch.max_retries is BATCH_MAX_RETRIES.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			c.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "configuration file (yaml, json or toml)")

	root.AddCommand(
		newWorkerCmd(c),
		newSweepCmd(c),
		newPlanCmd(c),
		newMigrateCmd(c),
		newSubmitCmd(c),
	)
	return root
}

// open wires the application for one-shot commands that need the database.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.log)
}
