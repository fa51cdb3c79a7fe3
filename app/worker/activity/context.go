package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/scheduler"
)

type Context struct {
	Logger *zap.Logger
	Syncer types.Syncer
	// Guard keeps a task key from overlapping its own previous run. It is process-local
	// unless replaced with a shared guard.
	Guard scheduler.Guard
}

// NewContext builds the task context over syncer.
func NewContext(logger *zap.Logger, syncer types.Syncer) *Context {
	return &Context{Logger: logger, Syncer: syncer, Guard: scheduler.NewLocalGuard()}
}

// Handlers maps every catalogue task to the sync call it runs.
func (c *Context) Handlers() map[scheduler.Task]scheduler.Handler {
	return map[scheduler.Task]scheduler.Handler{
		scheduler.TaskBuyEVMToken: func(ctx context.Context, _ scheduler.Registration) error {
			report, err := c.Syncer.ExecuteDueBuys(ctx)
			if err != nil {
				return err
			}
			c.logReport(scheduler.TaskBuyEVMToken, report.Due, report.Sent, report.Failed)
			return nil
		},
		scheduler.TaskCloseEVMPosition: func(ctx context.Context, _ scheduler.Registration) error {
			report, err := c.Syncer.ExecuteDueCloses(ctx)
			if err != nil {
				return err
			}
			c.logReport(scheduler.TaskCloseEVMPosition, report.Due, report.Sent, report.Failed)
			return nil
		},
		scheduler.TaskSyncEVMMachine: func(ctx context.Context, _ scheduler.Registration) error {
			return c.Syncer.SyncPools(ctx)
		},
		scheduler.TaskSyncEVMPoolActivities: func(ctx context.Context, _ scheduler.Registration) error {
			return c.Syncer.SyncAllPoolActivities(ctx)
		},
		scheduler.TaskUpdateUserToken: func(ctx context.Context, reg scheduler.Registration) error {
			return c.Syncer.SyncUserPortfolio(ctx, reg.Owner)
		},
	}
}

func (c *Context) logReport(task scheduler.Task, due, sent, failed int) {
	if due == 0 {
		return
	}
	c.Logger.Info("execution finished",
		zap.String("task", string(task)),
		zap.Int("due", due),
		zap.Int("sent", sent),
		zap.Int("failed", failed))
}
