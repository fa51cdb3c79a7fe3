package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	sdkactivity "go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/scheduler"
	"github.com/systemis/funding-machine-backend/pkg/temporal"
)

// RunTask runs one fire of a scheduled task. A fire that finds the previous fire of the same
// key still running is skipped, not failed.
func (c *Context) RunTask(ctx context.Context, in temporal.TaskInput) (*temporal.TaskResult, error) {
	spec, err := scheduler.LookupTask(in.Task)
	if err != nil {
		return nil, err
	}
	reg := spec.Registration(in.Owner)

	runID := uuid.NewString()
	if sdkactivity.IsActivity(ctx) {
		runID = sdkactivity.GetInfo(ctx).WorkflowExecution.RunID
	}
	logger := c.Logger.With(zap.String("key", reg.Key), zap.String("runId", runID))

	release, ok, err := c.Guard.TryAcquire(ctx, reg.Key, 2*spec.Every)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("skipping overlapping run")
		return &temporal.TaskResult{Key: reg.Key, RunID: runID, Skipped: true}, nil
	}
	defer release()

	handler := c.Handlers()[reg.Task]
	start := time.Now()
	if err := handler(ctx, reg); err != nil {
		logger.Warn("task finished with error", zap.Duration("took", time.Since(start)), zap.Error(err))
		return nil, err
	}
	took := time.Since(start)
	logger.Debug("task finished", zap.Duration("took", took))
	return &temporal.TaskResult{Key: reg.Key, RunID: runID, Duration: took}, nil
}
