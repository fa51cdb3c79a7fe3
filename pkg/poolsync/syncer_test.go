package poolsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/systemis/funding-machine-backend/pkg/entity"
)

func newSyncer(t *testing.T, store *memStore, chains *fakeChains, rec *recorder) *Syncer {
	t.Helper()
	s := New(zaptest.NewLogger(t), store, chains, policy, rec, 4)
	s.Now = func() time.Time { return now }
	t.Cleanup(s.Close)
	return s
}

func TestSyncPoolByID(t *testing.T) {
	ctx := context.Background()

	t.Run("missing pool", func(t *testing.T) {
		s := newSyncer(t, newMemStore(), &fakeChains{}, &recorder{})
		err := s.SyncPoolByID(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, ErrPoolNotFound)
	})

	t.Run("stopped chain is a no-op", func(t *testing.T) {
		store := newMemStore()
		p := storedPool(entity.ChainOKT, time.Hour)
		store.add(p)
		reader := newFakeReader()
		s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{entity.ChainOKT: reader}}, &recorder{})

		require.NoError(t, s.SyncPoolByID(ctx, p.ID))
		assert.Zero(t, reader.fetchCalls.Load())
		assert.Empty(t, store.upserts)
	})

	t.Run("not initialized on-chain", func(t *testing.T) {
		store := newMemStore()
		p := storedPool(entity.ChainBNB, time.Hour)
		store.add(p)
		s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{entity.ChainBNB: newFakeReader()}}, &recorder{})

		err := s.SyncPoolByID(ctx, p.ID)
		assert.ErrorIs(t, err, ErrMachineNotInitialized)
		assert.Empty(t, store.upserts)
	})

	t.Run("writes snapshot then metrics", func(t *testing.T) {
		store := newMemStore()
		p := storedPool(entity.ChainBNB, time.Hour)
		store.add(p)
		reader := newFakeReader()
		reader.put(machineOf(p))
		rec := &recorder{}
		s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{entity.ChainBNB: reader}}, rec)

		require.NoError(t, s.SyncPoolByID(ctx, p.ID))
		require.Len(t, store.upserts, 2)
		assert.Nil(t, store.upserts[0][0].Metrics)
		require.NotNil(t, store.upserts[1][0].Metrics)

		got := store.pool(p.ID)
		assert.Equal(t, float64(4_000_000), got.CurrentSpentBaseToken)
		require.NotNil(t, got.CurrentROI)
		assert.InDelta(t, 25, *got.CurrentROI, 1e-9)
		require.NotNil(t, got.AvgPrice)
		assert.InDelta(t, 2, *got.AvgPrice, 1e-9)
		assert.Equal(t, []string{p.ID.Hex()}, rec.updated)
	})

	t.Run("failed closing quote prices at break-even", func(t *testing.T) {
		store := newMemStore()
		p := storedPool(entity.ChainBNB, time.Hour)
		store.add(p)
		reader := newFakeReader()
		reader.put(machineOf(p))
		reader.quoteErr = errors.New("execution reverted")
		s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{entity.ChainBNB: reader}}, &recorder{})

		require.NoError(t, s.SyncPoolByID(ctx, p.ID))
		got := store.pool(p.ID)
		require.NotNil(t, got.CurrentROI)
		assert.InDelta(t, 0, *got.CurrentROI, 1e-9)
	})
}

func TestSyncPoolsByOwnerAddressSkipsUninitialized(t *testing.T) {
	store := newMemStore()
	reader := newFakeReader()
	var pools []entity.Pool
	for i := 0; i < 3; i++ {
		p := storedPool(entity.ChainBNB, time.Hour)
		store.add(p)
		pools = append(pools, p)
	}
	reader.put(machineOf(pools[0]))
	reader.put(machineOf(pools[2]))
	rec := &recorder{}
	s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{entity.ChainBNB: reader}}, rec)

	require.NoError(t, s.SyncPoolsByOwnerAddress(context.Background(), owner, entity.ChainBNB))

	assert.Equal(t, int32(1), reader.batchCalls.Load())
	require.Len(t, reader.quoteBatches, 1)
	assert.Len(t, reader.quoteBatches[0], 2)
	require.Len(t, store.upserts, 1)
	require.Len(t, store.upserts[0], 2)

	written := map[string]bool{}
	for _, w := range store.upserts[0] {
		written[w.Snapshot.ID.Hex()] = true
		assert.NotNil(t, w.Metrics)
	}
	assert.True(t, written[pools[0].ID.Hex()])
	assert.False(t, written[pools[1].ID.Hex()])
	assert.True(t, written[pools[2].ID.Hex()])
	assert.Len(t, rec.updated, 2)
}

func TestSyncPoolsByOwnerAddressLooksUpFeesConcurrently(t *testing.T) {
	store := newMemStore()
	reader := newFakeReader()
	reader.feeDelay = 50 * time.Millisecond
	for i := 0; i < 4; i++ {
		p := storedPool(entity.ChainBNB, time.Hour)
		store.add(p)
		reader.put(machineOf(p))
	}
	s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{entity.ChainBNB: reader}}, &recorder{})

	require.NoError(t, s.SyncPoolsByOwnerAddress(context.Background(), owner, entity.ChainBNB))

	assert.Greater(t, reader.feePeak.Load(), int32(1))
	require.Len(t, reader.quoteBatches, 1)
	require.Len(t, reader.quoteBatches[0], 4)
	for _, req := range reader.quoteBatches[0] {
		assert.Equal(t, int64(500), req.Fee.Int64())
		assert.Equal(t, targetToken, req.Base)
		assert.Equal(t, baseToken, req.Target)
	}
}

func TestSyncPoolsByOwnerAddressOnNonEVMChain(t *testing.T) {
	store := newMemStore()
	s := newSyncer(t, store, &fakeChains{}, &recorder{})
	require.NoError(t, s.SyncPoolsByOwnerAddress(context.Background(), owner, entity.ChainSolana))
	assert.Empty(t, store.upserts)
}

func TestSyncPools(t *testing.T) {
	store := newMemStore()
	healthy := newFakeReader()
	broken := newFakeReader()
	broken.fetchErr = errors.New("connection refused")

	due := storedPool(entity.ChainBNB, time.Hour)
	recent := storedPool(entity.ChainBNB, time.Minute)
	stale := storedPool(entity.ChainBNB, 8*24*time.Hour)
	ended := storedPool(entity.ChainBNB, time.Hour)
	ended.Status = entity.PoolStatusEnded
	other := storedPool(entity.ChainAvaxC, time.Hour)
	stopped := storedPool(entity.ChainGnosis, time.Hour)
	for _, p := range []entity.Pool{due, recent, stale, ended, other, stopped} {
		store.add(p)
		healthy.put(machineOf(p))
	}

	s := newSyncer(t, store, &fakeChains{readers: map[entity.ChainID]*fakeReader{
		entity.ChainBNB:    healthy,
		entity.ChainAvaxC:  broken,
		entity.ChainGnosis: healthy,
	}}, &recorder{})

	require.NoError(t, s.SyncPools(context.Background()))

	assert.Equal(t, int32(1), healthy.batchCalls.Load())
	assert.Equal(t, int32(1), broken.batchCalls.Load())
	require.Len(t, store.upserts, 1)
	require.Len(t, store.upserts[0], 1)
	assert.Equal(t, due.ID, store.upserts[0][0].Snapshot.ID)
	assert.Equal(t, now, store.pool(due.ID).UpdatedAt)
	assert.Equal(t, recent.UpdatedAt, store.pool(recent.ID).UpdatedAt)
}

func TestCreateEmptyPool(t *testing.T) {
	store := newMemStore()
	s := newSyncer(t, store, &fakeChains{}, &recorder{})

	p, err := s.CreateEmptyPool(context.Background(), owner, entity.ChainBNB)
	require.NoError(t, err)
	assert.Equal(t, entity.PoolStatusCreated, p.Status)
	assert.Zero(t, p.CurrentSpentBaseToken)
	assert.Zero(t, p.CurrentReceivedTargetToken)

	_, err = s.CreateEmptyPool(context.Background(), "", entity.ChainBNB)
	assert.Error(t, err)
}

func TestSyncUserPortfolio(t *testing.T) {
	store := newMemStore()
	a := storedPool(entity.ChainBNB, time.Hour)
	a.RemainingBaseTokenBalance = 6
	a.CurrentTargetTokenBalance = 2
	b := storedPool(entity.ChainBNB, time.Hour)
	b.RemainingBaseTokenBalance = 4
	b.CurrentTargetTokenBalance = 0
	b.TargetTokenAddress = baseToken.Hex()
	store.add(a)
	store.add(b)
	store.whitelist = append(store.whitelist, entity.Whitelist{Address: "0x00000000000000000000000000000000000000ff", Decimals: 18})
	s := newSyncer(t, store, &fakeChains{}, &recorder{})

	require.NoError(t, s.SyncUserPortfolio(context.Background(), owner))

	require.Len(t, store.userTokens, 2)
	assert.Equal(t, float64(10), store.userTokens[owner+"/"+strings.ToLower(baseToken.Hex())].Total)
	assert.Equal(t, float64(2), store.userTokens[owner+"/"+strings.ToLower(targetToken.Hex())].Total)
}
