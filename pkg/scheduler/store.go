package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/puzpuzpuz/xsync/v4"
	goredis "github.com/redis/go-redis/v9"
)

// Store persists registrations by id.
type Store interface {
	List(ctx context.Context) ([]Registration, error)
	Put(ctx context.Context, reg Registration) error
	Delete(ctx context.Context, id string) error
}

func sortRegistrations(regs []Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority < regs[j].Priority
		}
		return regs[i].ID < regs[j].ID
	})
}

// MemoryStore keeps registrations in process. Registrations do not survive a restart.
type MemoryStore struct {
	regs *xsync.Map[string, Registration]
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{regs: xsync.NewMap[string, Registration]()}
}

func (m *MemoryStore) List(context.Context) ([]Registration, error) {
	out := make([]Registration, 0, m.regs.Size())
	m.regs.Range(func(_ string, r Registration) bool {
		out = append(out, r)
		return true
	})
	sortRegistrations(out)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, reg Registration) error {
	m.regs.Store(reg.ID, reg)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.regs.Delete(id)
	return nil
}

// RegistrationsHash is the Redis hash holding one field per registration id.
const RegistrationsHash = "dca:scheduler:registrations"

// RedisStore keeps registrations in a Redis hash shared by every worker.
type RedisStore struct {
	client goredis.Cmdable
	hash   string
}

// NewRedisStore creates a store over client using RegistrationsHash.
func NewRedisStore(client goredis.Cmdable) *RedisStore {
	return &RedisStore{client: client, hash: RegistrationsHash}
}

func (r *RedisStore) List(ctx context.Context) ([]Registration, error) {
	raw, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]Registration, 0, len(raw))
	for id, v := range raw {
		var reg Registration
		if err := json.Unmarshal([]byte(v), &reg); err != nil {
			return nil, fmt.Errorf("decode registration %s: %w", id, err)
		}
		out = append(out, reg)
	}
	sortRegistrations(out)
	return out, nil
}

func (r *RedisStore) Put(ctx context.Context, reg Registration) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registration %s: %w", reg.ID, err)
	}
	if err := r.client.HSet(ctx, r.hash, reg.ID, raw).Err(); err != nil {
		return fmt.Errorf("put registration %s: %w", reg.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.hash, id).Err(); err != nil {
		return fmt.Errorf("delete registration %s: %w", id, err)
	}
	return nil
}
