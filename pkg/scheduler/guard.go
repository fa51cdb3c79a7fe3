package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	goredis "github.com/redis/go-redis/v9"
)

// Guard lets at most one fire per key run at a time.
type Guard interface {
	// TryAcquire claims key for at most ttl. When ok is false another fire holds it and the
	// caller must skip.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	// Running reports whether key is currently held.
	Running(ctx context.Context, key string) bool
}

// LocalGuard holds keys in process. It only covers fires of a single worker.
type LocalGuard struct {
	running *xsync.Map[string, *atomic.Bool]
}

// NewLocalGuard creates a guard with no key held.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{running: xsync.NewMap[string, *atomic.Bool]()}
}

func (g *LocalGuard) TryAcquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	flag, _ := g.running.LoadOrStore(key, &atomic.Bool{})
	if !flag.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { flag.Store(false) }, true, nil
}

func (g *LocalGuard) Running(_ context.Context, key string) bool {
	flag, ok := g.running.Load(key)
	return ok && flag.Load()
}

// GuardKeyPrefix namespaces the Redis lock keys of RedisGuard.
const GuardKeyPrefix = "dca:scheduler:running:"

// releaseScript deletes the lock only while it still carries the holder's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisGuard holds keys in Redis so every worker sharing the registrations shares the guard.
// A lock expires after its ttl, so a crashed holder blocks the key for one ttl at most.
type RedisGuard struct {
	client goredis.UniversalClient
}

// NewRedisGuard creates a guard over client.
func NewRedisGuard(client goredis.UniversalClient) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, GuardKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, g.client, []string{GuardKeyPrefix + key}, token).Err()
	}
	return release, true, nil
}

func (g *RedisGuard) Running(ctx context.Context, key string) bool {
	n, err := g.client.Exists(ctx, GuardKeyPrefix+key).Result()
	return err == nil && n > 0
}
