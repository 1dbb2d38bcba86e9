package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ladvien/self-sensored-sub003/internal/data/db"
)

func newWorkerCmd(c *cli) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker pool, the sweeper and the ops server",
		Long: `Run the background job worker pool until SIGINT or SIGTERM.

The process also runs the retention sweeper and serves /healthz, /readyz
and /metrics on ops.addr. On shutdown, jobs in flight finish their
terminal write before the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := a.Stop(stopCtx); err != nil {
					c.log.Warn("shutdown", "error", err)
				}
			}()

			if migrate {
				if err := db.Migrate(a.DB); err != nil {
					return err
				}
			}
			if err := a.Start(ctx); err != nil {
				return err
			}
			err = a.Ops.Run(ctx)
			c.log.Info("shutting down")
			return err
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before starting")
	return cmd
}
