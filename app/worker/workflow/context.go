package workflow

import (
	"github.com/systemis/funding-machine-backend/app/worker/activity"
)

// Context holds the workflow context.
type Context struct {
	TaskQueue       string
	ActivityContext *activity.Context
}
