package workflow

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/systemis/funding-machine-backend/pkg/scheduler"
	"github.com/systemis/funding-machine-backend/pkg/temporal"
)

// TaskWorkflow runs a scheduled task as a single activity. The activity may take up to the
// task period; retries stay inside that window so a retry never overlaps the next fire.
func (wc *Context) TaskWorkflow(ctx workflow.Context, in temporal.TaskInput) (*temporal.TaskResult, error) {
	spec, err := scheduler.LookupTask(in.Task)
	if err != nil {
		return nil, sdktemporal.NewNonRetryableApplicationError(err.Error(), "unknown_task", err)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout:    spec.Every,
		ScheduleToCloseTimeout: 2 * spec.Every,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
		TaskQueue: wc.TaskQueue,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res temporal.TaskResult
	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.RunTask, in).Get(ctx, &res); err != nil {
		return nil, err
	}
	if res.Skipped {
		workflow.GetLogger(ctx).Info("task skipped, previous run still active", "key", res.Key)
	}
	return &res, nil
}
