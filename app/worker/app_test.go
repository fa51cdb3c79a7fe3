package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/redis"
	"github.com/systemis/funding-machine-backend/pkg/scheduler"
)

func TestUseCronSharesGuardThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := &types.App{Logger: logger, Redis: redis.Wrap(rdb, logger, 0)}
	UseCron(app, nil)

	assert.Equal(t, types.BackendCron, app.Backend)
	assert.IsType(t, &scheduler.RedisGuard{}, app.Runner.Guard)

	ctx := context.Background()
	release, ok, err := app.Runner.Guard.TryAcquire(ctx, "buy-evm-token", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(scheduler.GuardKeyPrefix+"buy-evm-token"))
	release()
}

func TestUseCronInMemory(t *testing.T) {
	t.Setenv("SCHEDULER_STORE", "memory")
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := &types.App{Logger: logger, Redis: redis.Wrap(rdb, logger, 0)}
	UseCron(app, nil)
	assert.IsType(t, &scheduler.LocalGuard{}, app.Runner.Guard)

	app = &types.App{Logger: logger}
	assert.IsType(t, &scheduler.LocalGuard{}, NewGuard(app))
}
