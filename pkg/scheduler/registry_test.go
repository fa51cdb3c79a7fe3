package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEnsureCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key(TaskBuyEVMToken, "")
	require.NoError(t, store.Put(ctx, Registration{ID: "legacy-1", Key: key, Task: TaskBuyEVMToken, Every: time.Minute}))
	require.NoError(t, store.Put(ctx, Registration{ID: "legacy-2", Key: key, Task: TaskBuyEVMToken, Every: time.Minute}))
	require.NoError(t, store.Put(ctx, Registration{ID: "other", Key: "other", Task: "other", Every: time.Minute}))

	reg := NewRegistry(zaptest.NewLogger(t), store)
	spec, err := LookupTask(string(TaskBuyEVMToken))
	require.NoError(t, err)

	removed, err := reg.Ensure(ctx, spec.Registration(""))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	regs, err := store.List(ctx)
	require.NoError(t, err)
	var forKey []Registration
	for _, r := range regs {
		if r.Key == key {
			forKey = append(forKey, r)
		}
	}
	require.Len(t, forKey, 1)
	assert.Equal(t, key, forKey[0].ID)
	assert.Equal(t, 1, forKey[0].Priority)
	assert.Len(t, regs, 2)

	removed, err = reg.Ensure(ctx, spec.Registration(""))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestEnsureAllDropsStaleOwners(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	reg := NewRegistry(zaptest.NewLogger(t), store)

	require.NoError(t, reg.EnsureAll(ctx, Desired([]string{"0xa", "0xb"})))
	regs, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, regs, 6)
	assert.Equal(t, 1, regs[0].Priority)

	require.NoError(t, store.Put(ctx, Registration{ID: "manual", Key: "manual", Task: "manual"}))
	require.NoError(t, reg.EnsureAll(ctx, Desired([]string{"0xb"})))
	regs, err = reg.List(ctx)
	require.NoError(t, err)

	keys := map[string]bool{}
	for _, r := range regs {
		keys[r.Key] = true
	}
	assert.False(t, keys["update-user-token:0xa"])
	assert.True(t, keys["update-user-token:0xb"])
	assert.True(t, keys["manual"])
	assert.Len(t, regs, 6)
}

func TestDesiredAndKeys(t *testing.T) {
	regs := Desired([]string{"0xowner"})
	require.Len(t, regs, 5)
	byKey := map[string]Registration{}
	for _, r := range regs {
		assert.Equal(t, r.Key, r.ID)
		if r.Owner == "" {
			// Global tasks span every eligible chain, so the key is the task name alone.
			assert.Equal(t, string(r.Task), r.Key)
		}
		byKey[r.Key] = r
	}
	assert.Equal(t, 5*time.Minute, byKey["sync-evm-machine"].Every)
	assert.Equal(t, 3, byKey["update-user-token:0xowner"].Priority)

	task, owner := ParseKey("update-user-token:0xowner")
	assert.Equal(t, TaskUpdateUserToken, task)
	assert.Equal(t, "0xowner", owner)

	_, err := LookupTask("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := &RedisStore{client: rdb, hash: "test:" + t.Name()}
	t.Cleanup(func() { rdb.Del(ctx, store.hash) })

	key := Key(TaskSyncEVMMachine, "")
	require.NoError(t, store.Put(ctx, Registration{ID: "dup-1", Key: key, Task: TaskSyncEVMMachine, Every: time.Minute}))
	require.NoError(t, store.Put(ctx, Registration{ID: "dup-2", Key: key, Task: TaskSyncEVMMachine, Every: time.Minute}))

	reg := NewRegistry(zaptest.NewLogger(t), store)
	_, err := reg.Ensure(ctx, Catalogue[2].Registration(""))
	require.NoError(t, err)

	regs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, key, regs[0].ID)
	assert.Equal(t, 5*time.Minute, regs[0].Every)
}
