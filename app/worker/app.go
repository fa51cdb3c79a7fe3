package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/app/worker/activity"
	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/app/worker/workflow"
	"github.com/systemis/funding-machine-backend/pkg/cache"
	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/config"
	"github.com/systemis/funding-machine-backend/pkg/db"
	"github.com/systemis/funding-machine-backend/pkg/logging"
	"github.com/systemis/funding-machine-backend/pkg/notify"
	"github.com/systemis/funding-machine-backend/pkg/poolsync"
	"github.com/systemis/funding-machine-backend/pkg/redis"
	"github.com/systemis/funding-machine-backend/pkg/scheduler"
	"github.com/systemis/funding-machine-backend/pkg/temporal"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

// Connect opens the store, Redis and the chain factory, and builds the sync orchestrator.
// The scheduler backend is left unset.
func Connect(ctx context.Context, logger *zap.Logger) (*types.App, error) {
	app := &types.App{Logger: logger, Checks: map[string]types.Pinger{}}

	database, err := db.New(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	app.DB = database
	app.Checks["mongo"] = database.Ping
	created, err := database.EnsureIndexes(ctx)
	if err != nil {
		return app, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Debug("indexes ensured", zap.Strings("indexes", created))

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		return app, fmt.Errorf("connect redis: %w", err)
	}
	app.Redis = redisClient
	app.Checks["redis"] = redisClient.Health

	var fees cache.Cache
	switch utils.Env("FEE_CACHE", "redis") {
	case "memory":
		fees = cache.NewMemory()
	default:
		fees = cache.NewRedis(redisClient.GetClient(), "dca:fee:")
	}

	networks, err := config.LoadNetworks()
	if err != nil {
		return app, err
	}
	app.Factory = chain.NewFactory(networks, fees, logger)

	syncer := poolsync.New(
		logger,
		database,
		poolsync.FromFactory(networks, app.Factory),
		config.DefaultChainPolicy(),
		notify.NewRedis(redisClient, logger),
		utils.EnvInt("SYNC_PARALLELISM", 16),
	)
	app.Syncer = syncer
	app.OnClose(syncer.Close)
	logger.Info("sync orchestrator ready", zap.Int("chains", len(networks.ChainIDs())))
	return app, nil
}

func sharedScheduling(app *types.App) bool {
	return app.Redis != nil && utils.Env("SCHEDULER_STORE", "redis") != "memory"
}

// NewGuard returns the skip-if-running guard: shared through Redis when the registrations
// are shared, process-local otherwise.
func NewGuard(app *types.App) scheduler.Guard {
	if sharedScheduling(app) {
		return scheduler.NewRedisGuard(app.Redis.GetClient())
	}
	return scheduler.NewLocalGuard()
}

// UseCron wires the in-process backend: registrations live in Redis (or in memory with
// SCHEDULER_STORE=memory) and fire on cron timers.
func UseCron(app *types.App, handlers map[scheduler.Task]scheduler.Handler) {
	var store scheduler.Store
	if sharedScheduling(app) {
		store = scheduler.NewRedisStore(app.Redis.GetClient())
	} else {
		store = scheduler.NewMemoryStore()
	}
	app.Backend = types.BackendCron
	app.Registry = scheduler.NewRegistry(app.Logger, store)
	app.Runner = scheduler.NewRunner(app.Logger, app.Registry, handlers)
	app.Runner.Guard = NewGuard(app)
	app.Trigger = app.Runner
}

// UseTemporal wires the distributed backend: registrations are Temporal schedules.
func UseTemporal(ctx context.Context, app *types.App) error {
	tc, err := temporal.NewClient(ctx, app.Logger)
	if err != nil {
		return fmt.Errorf("connect temporal: %w", err)
	}
	app.TemporalClient = tc
	app.Checks["temporal"] = func(ctx context.Context) error {
		_, err := tc.Health(ctx)
		return err
	}
	if err := tc.EnsureNamespace(ctx, utils.EnvDuration("TEMPORAL_RETENTION", 72*time.Hour)); err != nil {
		return err
	}
	schedules := temporal.NewScheduleStore(tc, app.Logger)
	app.Backend = types.BackendTemporal
	app.Registry = scheduler.NewRegistry(app.Logger, schedules)
	app.Trigger = schedules
	return nil
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	app, err := Connect(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize dependencies", zap.Error(err))
	}
	activityContext := activity.NewContext(logger, app.Syncer)
	activityContext.Guard = NewGuard(app)

	switch backend := utils.Env("SCHEDULER_BACKEND", types.BackendCron); backend {
	case types.BackendTemporal:
		if err := UseTemporal(ctx, app); err != nil {
			logger.Fatal("Unable to initialize temporal backend", zap.Error(err))
		}
		workflowContext := workflow.Context{
			TaskQueue:       app.TemporalClient.TaskQueue,
			ActivityContext: activityContext,
		}
		wkr := worker.New(
			app.TemporalClient.TClient,
			app.TemporalClient.TaskQueue,
			worker.Options{
				MaxConcurrentWorkflowTaskPollers:   5,
				MaxConcurrentActivityTaskPollers:   5,
				MaxConcurrentActivityExecutionSize: utils.EnvInt("TEMPORAL_MAX_ACTIVITIES", 64),
				WorkerStopTimeout:                  1 * time.Minute,
			},
		)
		wkr.RegisterWorkflowWithOptions(
			workflowContext.TaskWorkflow,
			temporalworkflow.RegisterOptions{Name: temporal.TaskWorkflowName},
		)
		wkr.RegisterActivity(activityContext.RunTask)
		app.Worker = wkr
	case types.BackendCron:
		UseCron(app, activityContext.Handlers())
	default:
		logger.Fatal("Unknown scheduler backend", zap.String("backend", backend))
	}

	// Flush-then-recreate on every boot.
	if err := app.EnsureSchedules(ctx); err != nil {
		logger.Fatal("Unable to register schedules", zap.Error(err))
	}

	NewServer(app)
	return app
}
