package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "resync pools and activities from the chains",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pool <id>",
		Short: "resync one pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid pool id %q: %w", args[0], err)
			}
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				return app.Syncer.SyncPoolByID(ctx, id)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "owner <chain> <owner>",
		Short: "resync every pool of an owner on a chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				return app.Syncer.SyncPoolsByOwnerAddress(ctx, args[1], entity.ChainID(args[0]))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pools",
		Short: "resync the recently active pools of every chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				return app.Syncer.SyncPools(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "activities",
		Short: "ingest the next event window of every chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				return app.Syncer.SyncAllPoolActivities(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "portfolio <owner>",
		Short: "recompute the token totals of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				return app.Syncer.SyncUserPortfolio(ctx, args[0])
			})
		},
	})
	return cmd
}
