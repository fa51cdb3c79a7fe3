package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systemis/funding-machine-backend/app/worker/types"
)

func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the activity cursor of every chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				statuses, err := app.DB.ListSyncStatuses(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), statuses)
			})
		},
	}
}
