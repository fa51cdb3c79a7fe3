package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/db"
	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/poolsync"
	"github.com/systemis/funding-machine-backend/pkg/redis"
	"github.com/systemis/funding-machine-backend/pkg/scheduler"
	"github.com/systemis/funding-machine-backend/pkg/temporal"
)

// Scheduler backends.
const (
	BackendCron     = "cron"
	BackendTemporal = "temporal"
)

// Syncer is what the task handlers and the ops surface need from the sync orchestrator.
type Syncer interface {
	SyncPoolByID(ctx context.Context, id primitive.ObjectID) error
	SyncPools(ctx context.Context) error
	SyncPoolsByOwnerAddress(ctx context.Context, owner string, chainID entity.ChainID) error
	SyncAllPoolActivities(ctx context.Context) error
	SyncUserPortfolio(ctx context.Context, owner string) error
	ExecuteDueBuys(ctx context.Context) (poolsync.ExecutionReport, error)
	ExecuteDueCloses(ctx context.Context) (poolsync.ExecutionReport, error)
	Owners(ctx context.Context) ([]string, error)
	CreateEmptyPool(ctx context.Context, owner string, chainID entity.ChainID) (*entity.Pool, error)
}

// Trigger fires a registered task now. Implemented by the cron runner and the Temporal
// schedule store.
type Trigger interface {
	Trigger(ctx context.Context, key string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type App struct {
	Backend string

	// Storage and chain access
	DB      *db.DB
	Redis   *redis.Client
	Factory *chain.Factory

	Syncer   Syncer
	Registry *scheduler.Registry
	Trigger  Trigger

	// Cron backend
	Runner *scheduler.Runner

	// Temporal backend
	TemporalClient *temporal.Client
	Worker         worker.Worker

	Logger *zap.Logger
	Server *http.Server

	// Checks run by the readiness probe, by name.
	Checks map[string]Pinger

	closeSyncer func()
}

// OnClose registers the teardown of the sync orchestrator.
func (a *App) OnClose(fn func()) { a.closeSyncer = fn }

// Ready runs every readiness check and joins the failures.
func (a *App) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var errs []error
	for name, check := range a.Checks {
		if err := check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// EnsureSchedules registers the task catalogue, one portfolio refresh per known owner, and
// drops every stale or duplicate registration.
func (a *App) EnsureSchedules(ctx context.Context) error {
	owners, err := a.Syncer.Owners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	if err := a.Registry.EnsureAll(ctx, scheduler.Desired(owners)); err != nil {
		return fmt.Errorf("ensure schedules: %w", err)
	}
	a.Logger.Info("schedules ensured", zap.String("backend", a.Backend), zap.Int("owners", len(owners)))
	return nil
}

// Start starts the scheduler backend and the HTTP server, and blocks until ctx is done.
func (a *App) Start(ctx context.Context) {
	switch a.Backend {
	case BackendTemporal:
		if err := a.Worker.Start(); err != nil {
			a.Logger.Fatal("Unable to start worker", zap.Error(err))
		}
	default:
		if err := a.Runner.Start(ctx); err != nil {
			a.Logger.Fatal("Unable to start scheduler", zap.Error(err))
		}
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()
	a.Stop()
}

// Stop stops the scheduler first so no new fire starts while dependencies close.
func (a *App) Stop() {
	if a.Runner != nil {
		a.Logger.Info("Stopping scheduler")
		a.Runner.Stop()
	}
	if a.Worker != nil {
		a.Logger.Info("Stopping worker")
		a.Worker.Stop()
	}

	if a.Server != nil {
		a.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.Server.Shutdown(shutdownCtx)
		cancel()
	}

	a.Close()

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

// Close releases the connections opened by the app.
func (a *App) Close() {
	if a.closeSyncer != nil {
		a.closeSyncer()
	}
	if a.Factory != nil {
		a.Factory.Close()
	}
	if a.TemporalClient != nil {
		a.TemporalClient.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.DB.Close(ctx); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		}
		cancel()
	}
}
