// Package notify announces pool changes to downstream consumers over Redis.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/redis"
)

// Event names.
const (
	PoolUpdated         = "pool.updated"
	PoolExecutionFailed = "pool.execution_failed"
)

// PoolEvent is the payload of every notification.
type PoolEvent struct {
	Event   string         `json:"event"`
	PoolID  string         `json:"poolId"`
	ChainID entity.ChainID `json:"chainId"`
	Owner   string         `json:"ownerAddress,omitempty"`
	Status  string         `json:"status,omitempty"`
	Task    string         `json:"task,omitempty"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
}

// Sender delivers pool notifications. Delivery is best effort.
type Sender interface {
	PoolUpdated(ctx context.Context, chainID entity.ChainID, poolID, owner string, status entity.PoolStatus)
	ExecutionFailed(ctx context.Context, chainID entity.ChainID, poolID, task string, cause error)
}

// Channel is the Pub/Sub channel of an event on a chain.
func Channel(chainID entity.ChainID, event string) string {
	return fmt.Sprintf("dca:%s:%s", chainID, event)
}

// FailureStream keeps the recent execution failures for inspection.
const FailureStream = "dca:execution_failures"

// Redis publishes notifications on Pub/Sub and appends failures to FailureStream.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedis builds a sender over client.
func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger, now: time.Now}
}

func (r *Redis) publish(ctx context.Context, ev PoolEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("encode notification", zap.String("event", ev.Event), zap.Error(err))
		return
	}
	r.client.Publish(ctx, Channel(ev.ChainID, ev.Event), string(payload))
}

func (r *Redis) PoolUpdated(ctx context.Context, chainID entity.ChainID, poolID, owner string, status entity.PoolStatus) {
	r.publish(ctx, PoolEvent{
		Event:   PoolUpdated,
		PoolID:  poolID,
		ChainID: chainID,
		Owner:   owner,
		Status:  string(status),
		At:      r.now(),
	})
}

func (r *Redis) ExecutionFailed(ctx context.Context, chainID entity.ChainID, poolID, task string, cause error) {
	ev := PoolEvent{
		Event:   PoolExecutionFailed,
		PoolID:  poolID,
		ChainID: chainID,
		Task:    task,
		At:      r.now(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	r.publish(ctx, ev)
	r.client.XAdd(ctx, FailureStream, map[string]interface{}{
		"poolId":  poolID,
		"chainId": string(chainID),
		"task":    task,
		"error":   ev.Error,
	})
}

// Nop drops every notification.
type Nop struct{}

func (Nop) PoolUpdated(context.Context, entity.ChainID, string, string, entity.PoolStatus) {}
func (Nop) ExecutionFailed(context.Context, entity.ChainID, string, string, error)        {}
