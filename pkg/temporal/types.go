package temporal

import (
	"time"

	"go.temporal.io/sdk/client"
)

// Defaults used when the environment does not override them.
const (
	DefaultNamespace = "funding-machine"
	DefaultTaskQueue = "dca-tasks"
)

// Workflow and activity names shared by the schedules and the worker.
const (
	TaskWorkflowName    = "TaskWorkflow"
	RunTaskActivityName = "RunTask"
)

// TaskInput is the argument of every scheduled task workflow.
type TaskInput struct {
	Key   string `json:"key"`
	Task  string `json:"task"`
	Owner string `json:"owner,omitempty"`
}

// TaskResult summarizes one task run.
type TaskResult struct {
	Key      string        `json:"key"`
	RunID    string        `json:"runId"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
}

// GetScheduleSpec returns a schedule spec for the given interval.
func GetScheduleSpec(interval time.Duration) client.ScheduleSpec {
	return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: interval}}}
}
