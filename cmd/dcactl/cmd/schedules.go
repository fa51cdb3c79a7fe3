package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemis/funding-machine-backend/app/worker"
	"github.com/systemis/funding-machine-backend/app/worker/activity"
	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

func SchedulesCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "inspect and repair task registrations",
	}
	cmd.PersistentFlags().StringVar(&backend, "backend", utils.Env("SCHEDULER_BACKEND", types.BackendCron), "scheduler backend (cron|temporal)")

	useBackend := func(ctx context.Context, app *types.App) error {
		switch backend {
		case types.BackendCron:
			worker.UseCron(app, activity.NewContext(app.Logger, app.Syncer).Handlers())
			return nil
		case types.BackendTemporal:
			return worker.UseTemporal(ctx, app)
		default:
			return fmt.Errorf("unknown backend %q", backend)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "register the task catalogue and drop stale or duplicate registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				if err := useBackend(ctx, app); err != nil {
					return err
				}
				return app.EnsureSchedules(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "print the current registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				if err := useBackend(ctx, app); err != nil {
					return err
				}
				regs, err := app.Registry.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), regs)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run <key>",
		Short: "fire a registered task now (in this process for cron, on the server for temporal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				if err := useBackend(ctx, app); err != nil {
					return err
				}
				return app.Trigger.Trigger(ctx, args[0])
			})
		},
	})
	return cmd
}
