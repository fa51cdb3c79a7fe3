package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/poolsync"
	"github.com/systemis/funding-machine-backend/pkg/scheduler"
	"github.com/systemis/funding-machine-backend/pkg/temporal"
)

type callSyncer struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{}
}

func (s *callSyncer) record(call string) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.err
}

func (s *callSyncer) SyncPoolByID(context.Context, primitive.ObjectID) error { return s.record("pool") }
func (s *callSyncer) SyncPools(context.Context) error                       { return s.record("pools") }
func (s *callSyncer) SyncPoolsByOwnerAddress(context.Context, string, entity.ChainID) error {
	return s.record("owner")
}
func (s *callSyncer) SyncAllPoolActivities(context.Context) error { return s.record("activities") }
func (s *callSyncer) SyncUserPortfolio(_ context.Context, owner string) error {
	return s.record("portfolio:" + owner)
}
func (s *callSyncer) ExecuteDueBuys(context.Context) (poolsync.ExecutionReport, error) {
	return poolsync.ExecutionReport{Due: 2, Sent: 2}, s.record("buys")
}
func (s *callSyncer) ExecuteDueCloses(context.Context) (poolsync.ExecutionReport, error) {
	return poolsync.ExecutionReport{Due: 1, Failed: 1}, s.record("closes")
}
func (s *callSyncer) Owners(context.Context) ([]string, error) { return nil, nil }
func (s *callSyncer) CreateEmptyPool(context.Context, string, entity.ChainID) (*entity.Pool, error) {
	return nil, nil
}

func TestHandlersCoverCatalogue(t *testing.T) {
	syncer := &callSyncer{}
	c := NewContext(zaptest.NewLogger(t), syncer)
	handlers := c.Handlers()

	for _, reg := range scheduler.Desired([]string{"0xa"}) {
		h, ok := handlers[reg.Task]
		require.True(t, ok, reg.Task)
		require.NoError(t, h(context.Background(), reg))
	}
	assert.Equal(t, []string{"buys", "closes", "pools", "activities", "portfolio:0xa"}, syncer.calls)
}

func TestHandlerErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	c := NewContext(zaptest.NewLogger(t), &callSyncer{err: boom})
	err := c.Handlers()[scheduler.TaskBuyEVMToken](context.Background(), scheduler.Catalogue[0].Registration(""))
	assert.ErrorIs(t, err, boom)
}

func TestRunTask(t *testing.T) {
	syncer := &callSyncer{}
	c := NewContext(zaptest.NewLogger(t), syncer)

	res, err := c.RunTask(context.Background(), temporal.TaskInput{Key: "update-user-token:0xb", Task: "update-user-token", Owner: "0xb"})
	require.NoError(t, err)
	assert.Equal(t, "update-user-token:0xb", res.Key)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"portfolio:0xb"}, syncer.calls)

	_, err = c.RunTask(context.Background(), temporal.TaskInput{Task: "nope"})
	assert.ErrorIs(t, err, scheduler.ErrUnknownTask)
}

func TestRunTaskSkipsOverlap(t *testing.T) {
	syncer := &callSyncer{block: make(chan struct{})}
	c := NewContext(zaptest.NewLogger(t), syncer)
	in := temporal.TaskInput{Key: "sync-evm-machine", Task: "sync-evm-machine"}

	done := make(chan error, 1)
	go func() {
		_, err := c.RunTask(context.Background(), in)
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Guard.Running(context.Background(), "sync-evm-machine") }, time.Second, time.Millisecond)

	res, err := c.RunTask(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(syncer.block)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"pools"}, syncer.calls)
}
