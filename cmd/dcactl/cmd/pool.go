package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

func PoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "manage pools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create-empty <chain> <owner>",
		Short: "store a placeholder pool for an owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				pool, err := app.Syncer.CreateEmptyPool(ctx, args[1], entity.ChainID(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), pool)
			})
		},
	})

	var limit int64
	activities := &cobra.Command{
		Use:   "activities <id>",
		Short: "print the latest activities of a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid pool id %q: %w", args[0], err)
			}
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				list, err := app.DB.ListActivities(ctx, bson.M{"poolId": id}, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	activities.Flags().Int64Var(&limit, "limit", 20, "maximum number of activities")
	cmd.AddCommand(activities)
	return cmd
}
