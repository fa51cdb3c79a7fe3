package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Registry ensures exactly one registration per key in a Store.
type Registry struct {
	Logger *zap.Logger
	Store  Store
	Now    func() time.Time
}

// NewRegistry builds a registry over store.
func NewRegistry(logger *zap.Logger, store Store) *Registry {
	return &Registry{Logger: logger, Store: store, Now: time.Now}
}

// Ensure upserts reg under the id equal to its key, then removes every other registration
// with the same key. The key is never left without a registration.
func (r *Registry) Ensure(ctx context.Context, reg Registration) (removed int, err error) {
	reg.ID = reg.Key
	reg.UpdatedAt = r.Now()
	if err := r.Store.Put(ctx, reg); err != nil {
		return 0, err
	}
	regs, err := r.Store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, other := range regs {
		if other.Key != reg.Key || other.ID == reg.ID {
			continue
		}
		if err := r.Store.Delete(ctx, other.ID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		r.Logger.Info("removed duplicate registrations",
			zap.String("key", reg.Key),
			zap.Int("removed", removed))
	}
	return removed, nil
}

// EnsureAll ensures every desired registration and drops registrations of catalogue tasks
// whose key is no longer desired, such as owners without pools.
func (r *Registry) EnsureAll(ctx context.Context, desired []Registration) error {
	keep := make(map[string]struct{}, len(desired))
	for _, reg := range desired {
		if _, err := r.Ensure(ctx, reg); err != nil {
			return fmt.Errorf("ensure %s: %w", reg.Key, err)
		}
		keep[reg.Key] = struct{}{}
	}

	regs, err := r.Store.List(ctx)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if _, ok := keep[reg.Key]; ok {
			continue
		}
		if _, err := LookupTask(string(reg.Task)); err != nil {
			continue
		}
		if err := r.Store.Delete(ctx, reg.ID); err != nil {
			return fmt.Errorf("drop %s: %w", reg.ID, err)
		}
		r.Logger.Info("dropped stale registration", zap.String("key", reg.Key))
	}
	r.Logger.Info("registrations ensured", zap.Int("count", len(desired)))
	return nil
}

// List returns the registrations, lowest priority value first.
func (r *Registry) List(ctx context.Context) ([]Registration, error) {
	return r.Store.List(ctx)
}
