package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	temporalplatform "github.com/tilsley/snapsync/apps/snapsync/internal/platform/temporal"
)

func newScheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Create the Temporal schedule that runs the pipeline on temporal.cron",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if cfg.Temporal.ScheduleID == "" || cfg.Temporal.Cron == "" {
				return errors.New("temporal.schedule_id and temporal.cron are required")
			}
			tc, err := client.Dial(client.Options{
				HostPort:  cfg.Temporal.HostPort,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return fmt.Errorf("temporal client init: %w", err)
			}
			defer tc.Close()

			engine := temporalplatform.NewEngine(tc, temporalplatform.WithActivityTimeout(cfg.Temporal.ActivityTimeout))
			if err := engine.EnsureSchedule(cmd.Context(), cfg.Temporal.ScheduleID, cfg.Temporal.Cron); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schedule %s runs %q\n", cfg.Temporal.ScheduleID, cfg.Temporal.Cron)
			return nil
		},
	}
}
