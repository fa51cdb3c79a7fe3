package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/app/worker"
	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/logging"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dcactl",
		Short: "operate the DCA pool sync engine",
	}
	cmd.AddCommand(SyncCmd())
	cmd.AddCommand(SchedulesCmd())
	cmd.AddCommand(PoolCmd())
	cmd.AddCommand(StatusCmd())
	cmd.AddCommand(EventsCmd())
	return cmd
}

// withApp connects the dependencies, runs fn and releases them.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *types.App) error) error {
	cmd.SilenceUsage = true

	logger, err := logging.New()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	app, err := worker.Connect(ctx, logger)
	if app != nil {
		defer app.Close()
	}
	if err != nil {
		return err
	}
	if err := fn(ctx, app); err != nil {
		logger.Error("command failed", zap.String("command", cmd.CommandPath()), zap.Error(err))
		return err
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
