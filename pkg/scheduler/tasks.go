// Package scheduler keeps exactly one repeating registration per task key and fires the
// registered tasks, never letting a fire overlap the previous fire of the same key.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTask is returned for a task name outside the catalogue.
var ErrUnknownTask = errors.New("unknown task")

// Task names a kind of repeating job.
type Task string

const (
	TaskBuyEVMToken           Task = "buy-evm-token"
	TaskCloseEVMPosition      Task = "close-evm-position"
	TaskSyncEVMMachine        Task = "sync-evm-machine"
	TaskSyncEVMPoolActivities Task = "sync-evm-pool-activities"
	TaskUpdateUserToken       Task = "update-user-token"
)

// TaskSpec is the fixed period and priority of a task. Lower priority values run first.
// PerOwner tasks are registered once per distinct pool owner.
type TaskSpec struct {
	Task     Task
	Every    time.Duration
	Priority int
	PerOwner bool
}

// Catalogue lists every task the worker registers on boot.
var Catalogue = []TaskSpec{
	{Task: TaskBuyEVMToken, Every: time.Minute, Priority: 1},
	{Task: TaskCloseEVMPosition, Every: time.Minute, Priority: 1},
	{Task: TaskSyncEVMMachine, Every: 5 * time.Minute, Priority: 2},
	{Task: TaskSyncEVMPoolActivities, Every: time.Minute, Priority: 2},
	{Task: TaskUpdateUserToken, Every: time.Minute, Priority: 3, PerOwner: true},
}

// LookupTask returns the catalogue entry of a task.
func LookupTask(name string) (TaskSpec, error) {
	for _, s := range Catalogue {
		if string(s.Task) == name {
			return s, nil
		}
	}
	return TaskSpec{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
}

// Key is the stable identity of a registration: the task name, suffixed with the owner
// address for per-owner tasks.
func Key(task Task, owner string) string {
	if owner == "" {
		return string(task)
	}
	return string(task) + ":" + owner
}

// ParseKey splits a key back into task and owner.
func ParseKey(key string) (Task, string) {
	task, owner, _ := strings.Cut(key, ":")
	return Task(task), owner
}

// Registration is one repeating job. ID equals Key once the registry has ensured it; a
// store may still hold legacy entries with other ids for the same key.
type Registration struct {
	ID        string        `json:"id"`
	Key       string        `json:"key"`
	Task      Task          `json:"task"`
	Owner     string        `json:"owner,omitempty"`
	Every     time.Duration `json:"every"`
	Priority  int           `json:"priority"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Desired expands the catalogue into the registrations the worker should hold, given the
// current pool owners.
func Desired(owners []string) []Registration {
	var out []Registration
	for _, s := range Catalogue {
		if !s.PerOwner {
			out = append(out, s.Registration(""))
			continue
		}
		for _, o := range owners {
			out = append(out, s.Registration(o))
		}
	}
	return out
}

// Registration builds the registration of the task for owner, empty for global tasks.
func (s TaskSpec) Registration(owner string) Registration {
	key := Key(s.Task, owner)
	return Registration{
		ID:       key,
		Key:      key,
		Task:     s.Task,
		Owner:    owner,
		Every:    s.Every,
		Priority: s.Priority,
	}
}
