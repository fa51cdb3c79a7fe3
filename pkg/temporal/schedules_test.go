package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/systemis/funding-machine-backend/pkg/scheduler"
)

func newTestStore(t *testing.T) (*ScheduleStore, *mocks.ScheduleClient) {
	t.Helper()
	sc := &mocks.ScheduleClient{}
	t.Cleanup(func() { sc.AssertExpectations(t) })
	c := &Client{TSClient: sc, TaskQueue: DefaultTaskQueue, Namespace: DefaultNamespace}
	return NewScheduleStore(c, zaptest.NewLogger(t)), sc
}

func TestGetScheduleSpec(t *testing.T) {
	spec := GetScheduleSpec(5 * time.Minute)
	require.Len(t, spec.Intervals, 1)
	assert.Equal(t, 5*time.Minute, spec.Intervals[0].Every)
}

func TestScheduleStorePutCreatesMissingSchedule(t *testing.T) {
	store, sc := newTestStore(t)
	reg := scheduler.Catalogue[4].Registration("0xa")

	h := &mocks.ScheduleHandle{}
	h.On("Describe", mock.Anything).Return(nil, serviceerror.NewNotFound("missing"))
	sc.On("GetHandle", mock.Anything, "update-user-token:0xa").Return(h)
	sc.On("Create", mock.Anything, mock.MatchedBy(func(o client.ScheduleOptions) bool {
		action, ok := o.Action.(*client.ScheduleWorkflowAction)
		if !ok {
			return false
		}
		in, ok := action.Args[0].(TaskInput)
		return o.ID == "update-user-token:0xa" &&
			o.Overlap == enums.SCHEDULE_OVERLAP_POLICY_SKIP &&
			o.Spec.Intervals[0].Every == time.Minute &&
			action.Workflow == TaskWorkflowName &&
			action.TaskQueue == DefaultTaskQueue &&
			ok && in.Owner == "0xa" && in.Task == "update-user-token"
	})).Return(h, nil)

	require.NoError(t, store.Put(context.Background(), reg))
}

func TestScheduleStorePutUpdatesExistingSchedule(t *testing.T) {
	store, sc := newTestStore(t)
	reg := scheduler.Catalogue[2].Registration("")

	h := &mocks.ScheduleHandle{}
	h.On("Describe", mock.Anything).Return(&client.ScheduleDescription{}, nil)
	h.On("Update", mock.Anything, mock.Anything).Return(nil)
	sc.On("GetHandle", mock.Anything, "sync-evm-machine").Return(h)

	require.NoError(t, store.Put(context.Background(), reg))
	h.AssertExpectations(t)
	sc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestScheduleStoreDeleteToleratesMissing(t *testing.T) {
	store, sc := newTestStore(t)
	h := &mocks.ScheduleHandle{}
	h.On("Delete", mock.Anything).Return(serviceerror.NewNotFound("gone"))
	sc.On("GetHandle", mock.Anything, "buy-evm-token").Return(h)

	assert.NoError(t, store.Delete(context.Background(), "buy-evm-token"))
}

func TestScheduleStoreTriggerUnknown(t *testing.T) {
	store, sc := newTestStore(t)
	h := &mocks.ScheduleHandle{}
	h.On("Trigger", mock.Anything, mock.Anything).Return(serviceerror.NewNotFound("gone"))
	sc.On("GetHandle", mock.Anything, "buy-evm-token").Return(h)

	assert.ErrorIs(t, store.Trigger(context.Background(), "buy-evm-token"), scheduler.ErrNotRegistered)
}
