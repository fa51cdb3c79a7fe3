package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/scheduler"
)

// ScheduleStore keeps scheduler registrations as Temporal schedules, one per key. Schedule
// ids are unique per namespace, so a key can never hold two schedules.
type ScheduleStore struct {
	client *Client
	logger *zap.Logger
}

// NewScheduleStore builds a store over c.
func NewScheduleStore(c *Client, logger *zap.Logger) *ScheduleStore {
	return &ScheduleStore{client: c, logger: logger}
}

func (s *ScheduleStore) action(reg scheduler.Registration) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:       "task:" + reg.Key,
		Workflow: TaskWorkflowName,
		Args: []interface{}{TaskInput{
			Key:   reg.Key,
			Task:  string(reg.Task),
			Owner: reg.Owner,
		}},
		TaskQueue:                s.client.TaskQueue,
		WorkflowExecutionTimeout: 2 * reg.Every,
		Memo:                     map[string]interface{}{"priority": reg.Priority},
	}
}

// Put creates the schedule of reg, or updates its period and action when it exists.
// Overlapping runs are skipped by the server.
func (s *ScheduleStore) Put(ctx context.Context, reg scheduler.Registration) error {
	spec := GetScheduleSpec(reg.Every)
	h := s.client.TSClient.GetHandle(ctx, reg.ID)
	_, err := h.Describe(ctx)
	if err == nil {
		return h.Update(ctx, client.ScheduleUpdateOptions{
			DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
				sched := in.Description.Schedule
				sched.Spec = &spec
				sched.Action = s.action(reg)
				if sched.Policy == nil {
					sched.Policy = &client.SchedulePolicies{}
				}
				sched.Policy.Overlap = enums.SCHEDULE_OVERLAP_POLICY_SKIP
				return &client.ScheduleUpdate{Schedule: &sched}, nil
			},
		})
	}

	var notFound *serviceerror.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe schedule %s: %w", reg.ID, err)
	}
	s.logger.Info("Creating task schedule",
		zap.String("id", reg.ID),
		zap.Duration("every", reg.Every),
		zap.Int("priority", reg.Priority))
	_, err = s.client.TSClient.Create(ctx, client.ScheduleOptions{
		ID:      reg.ID,
		Spec:    spec,
		Action:  s.action(reg),
		Overlap: enums.SCHEDULE_OVERLAP_POLICY_SKIP,
		Memo:    map[string]interface{}{"priority": reg.Priority},
	})
	return err
}

// List returns the schedules of catalogue tasks as registrations.
func (s *ScheduleStore) List(ctx context.Context) ([]scheduler.Registration, error) {
	it, err := s.client.TSClient.List(ctx, client.ScheduleListOptions{PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	var out []scheduler.Registration
	for it.HasNext() {
		entry, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("list schedules: %w", err)
		}
		task, owner := scheduler.ParseKey(entry.ID)
		spec, err := scheduler.LookupTask(string(task))
		if err != nil {
			continue
		}
		reg := spec.Registration(owner)
		if entry.Spec != nil && len(entry.Spec.Intervals) > 0 {
			reg.Every = entry.Spec.Intervals[0].Every
		}
		out = append(out, reg)
	}
	return out, nil
}

// Delete removes a schedule. A missing schedule is not an error.
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	err := s.client.TSClient.GetHandle(ctx, id).Delete(ctx)
	var notFound *serviceerror.NotFound
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}

// Trigger starts the schedule's action now, skipped by the server if a run is in flight.
func (s *ScheduleStore) Trigger(ctx context.Context, id string) error {
	err := s.client.TSClient.GetHandle(ctx, id).Trigger(ctx, client.ScheduleTriggerOptions{
		Overlap: enums.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", scheduler.ErrNotRegistered, id)
	}
	return err
}
