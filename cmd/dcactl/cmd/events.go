package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/notify"
)

func EventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "inspect pool notifications",
	}

	var count int64
	failures := &cobra.Command{
		Use:   "failures",
		Short: "print the most recent execution failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				msgs, err := app.Redis.XRange(ctx, notify.FailureStream, "-", "+", count)
				if err != nil {
					return err
				}
				out := make([]map[string]interface{}, 0, len(msgs))
				for _, m := range msgs {
					entry := map[string]interface{}{"id": m.ID}
					for k, v := range m.Values {
						entry[k] = v
					}
					out = append(out, entry)
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	failures.Flags().Int64Var(&count, "count", 50, "maximum number of entries")
	cmd.AddCommand(failures)

	var chain string
	watch := &cobra.Command{
		Use:   "watch",
		Short: "print pool notifications as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *types.App) error {
				pattern := "dca:*"
				if chain != "" {
					pattern = fmt.Sprintf("dca:%s:*", chain)
				}
				sub := app.Redis.PSubscribe(ctx, pattern)
				defer sub.Close()
				ch := sub.Channel()
				for {
					select {
					case <-ctx.Done():
						return nil
					case msg, ok := <-ch:
						if !ok {
							return nil
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Channel, msg.Payload)
					}
				}
			})
		},
	}
	watch.Flags().StringVar(&chain, "chain", "", "only this chain")
	cmd.AddCommand(watch)
	return cmd
}
