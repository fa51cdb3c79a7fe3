package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Fire when the previous fire of the key has not finished.
var ErrAlreadyRunning = errors.New("task already running")

// ErrNotRegistered is returned by Trigger for a key with no registration.
var ErrNotRegistered = errors.New("task not registered")

// Handler runs one fire of a task.
type Handler func(ctx context.Context, reg Registration) error

// CronLogger routes robfig/cron logs to zap.
type CronLogger struct {
	Logger *zap.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// Runner fires the registrations of a Registry on constant-delay timers.
type Runner struct {
	Logger   *zap.Logger
	Registry *Registry
	Guard    Guard
	// Timeout bounds a single fire. Zero means twice the registration period.
	Timeout time.Duration

	handlers map[Task]Handler
	cron     *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]scheduled
}

type scheduled struct {
	id  cron.EntryID
	reg Registration
}

// NewRunner builds a runner dispatching each task to its handler.
func NewRunner(logger *zap.Logger, registry *Registry, handlers map[Task]Handler) *Runner {
	cl := CronLogger{Logger: logger}
	return &Runner{
		Logger:   logger,
		Registry: registry,
		Guard:    NewLocalGuard(),
		handlers: handlers,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		ctx:      context.Background(),
		entries:  map[string]scheduled{},
	}
}

// Start schedules every stored registration and starts the timers. Fires run under ctx.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	if err := r.Reload(ctx); err != nil {
		return err
	}
	r.cron.Start()
	r.Logger.Info("scheduler started", zap.Int("entries", len(r.cron.Entries())))
	return nil
}

// Reload makes the timers match the stored registrations: new keys are scheduled, removed
// keys are unscheduled, and keys whose period changed are rescheduled.
func (r *Runner) Reload(ctx context.Context) error {
	regs, err := r.Registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(regs))
	for _, reg := range regs {
		if reg.ID != reg.Key {
			continue
		}
		seen[reg.Key] = struct{}{}
		if cur, ok := r.entries[reg.Key]; ok {
			if cur.reg.Every == reg.Every {
				cur.reg = reg
				r.entries[reg.Key] = cur
				continue
			}
			r.cron.Remove(cur.id)
		}
		if _, ok := r.handlers[reg.Task]; !ok {
			r.Logger.Warn("no handler for task", zap.String("task", string(reg.Task)))
			continue
		}
		if reg.Every <= 0 {
			r.Logger.Warn("registration without period", zap.String("key", reg.Key))
			continue
		}
		reg := reg
		id := r.cron.Schedule(cron.Every(reg.Every), cron.FuncJob(func() { r.fireScheduled(reg.Key) }))
		r.entries[reg.Key] = scheduled{id: id, reg: reg}
	}
	for key, cur := range r.entries {
		if _, ok := seen[key]; !ok {
			r.cron.Remove(cur.id)
			delete(r.entries, key)
		}
	}
	return nil
}

// Stop stops the timers and waits for running fires.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) fireScheduled(key string) {
	r.mu.Lock()
	cur, ok := r.entries[key]
	ctx := r.ctx
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.Fire(ctx, cur.reg); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		r.Logger.Error("task failed", zap.String("key", key), zap.Error(err))
	}
}

// Fire runs one fire of reg unless the previous fire of its key is still running.
func (r *Runner) Fire(ctx context.Context, reg Registration) error {
	handler, ok := r.handlers[reg.Task]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, reg.Task)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * reg.Every
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	release, ok, err := r.Guard.TryAcquire(ctx, reg.Key, timeout)
	if err != nil {
		return err
	}
	if !ok {
		r.Logger.Debug("skipping overlapping fire", zap.String("key", reg.Key))
		return ErrAlreadyRunning
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runID := uuid.NewString()
	logger := r.Logger.With(zap.String("key", reg.Key), zap.String("runId", runID))
	start := time.Now()
	logger.Debug("task started")
	if err := handler(ctx, reg); err != nil {
		logger.Warn("task finished with error", zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	logger.Debug("task finished", zap.Duration("took", time.Since(start)))
	return nil
}

// Trigger fires the registration of key now, outside its timer.
func (r *Runner) Trigger(ctx context.Context, key string) error {
	regs, err := r.Registry.List(ctx)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if reg.Key == key && reg.ID == key {
			return r.Fire(ctx, reg)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotRegistered, key)
}
