package poolsync

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/config"
	"github.com/systemis/funding-machine-backend/pkg/db"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

var (
	baseToken   = common.HexToAddress("0xba5e")
	targetToken = common.HexToAddress("0x7a76e7")
	router      = common.HexToAddress("0x4077e4")
	owner       = common.HexToAddress("0xc0ffee").Hex()
	now         = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy      = config.ChainPolicy{
		NonEVM:  entity.NewChainSet(entity.NonEVMChains),
		Stopped: entity.NewChainSet(entity.StoppedChains),
	}
)

type memStore struct {
	mu         sync.Mutex
	pools      map[primitive.ObjectID]*entity.Pool
	activities map[string]entity.PoolActivity
	statuses   map[entity.ChainID]*entity.SyncStatus
	whitelist  []entity.Whitelist
	userTokens map[string]entity.UserToken
	upserts    [][]db.PoolWrite
	dates      []map[primitive.ObjectID]entity.PoolDates
}

func newMemStore() *memStore {
	return &memStore{
		pools:      map[primitive.ObjectID]*entity.Pool{},
		activities: map[string]entity.PoolActivity{},
		statuses:   map[entity.ChainID]*entity.SyncStatus{},
		userTokens: map[string]entity.UserToken{},
		whitelist: []entity.Whitelist{
			{ChainID: "bnb", Address: baseToken.Hex(), Decimals: 6, Symbol: "USDC"},
			{ChainID: "bnb", Address: targetToken.Hex(), Decimals: 6, Symbol: "TGT"},
		},
	}
}

func (m *memStore) add(p entity.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID] = &p
}

func (m *memStore) pool(id primitive.ObjectID) entity.Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.pools[id]
}

func (m *memStore) list(match func(p *entity.Pool) bool) []entity.Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Pool
	for _, p := range m.pools {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func excluded(chains []string, c entity.ChainID) bool {
	for _, x := range chains {
		if x == string(c) {
			return true
		}
	}
	return false
}

func (m *memStore) FindPoolByID(_ context.Context, id primitive.ObjectID) (*entity.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) FindPoolsByOwner(_ context.Context, o string, chainID entity.ChainID) ([]entity.Pool, error) {
	return m.list(func(p *entity.Pool) bool { return p.OwnerAddress == o && p.ChainID == chainID }), nil
}

func (m *memStore) SelectPoolsForSync(_ context.Context, sel db.SyncSelection) ([]db.ChainPools, error) {
	byChain := map[entity.ChainID][]entity.Pool{}
	for _, p := range m.list(func(p *entity.Pool) bool {
		if excluded(sel.ExcludedChains, p.ChainID) {
			return false
		}
		ok := false
		for _, s := range sel.Statuses {
			ok = ok || s == p.Status
		}
		return ok && !p.UpdatedAt.Before(sel.UpdatedAfter) && p.UpdatedAt.Before(sel.UpdatedBefore)
	}) {
		byChain[p.ChainID] = append(byChain[p.ChainID], p)
	}
	var out []db.ChainPools
	for c, ps := range byChain {
		out = append(out, db.ChainPools{ChainID: c, Pools: ps})
	}
	return out, nil
}

func (m *memStore) DueBuyPools(_ context.Context, at time.Time, ex []string) ([]entity.Pool, error) {
	return m.list(func(p *entity.Pool) bool {
		return !excluded(ex, p.ChainID) && p.Status == entity.PoolStatusActive &&
			p.NextExecutionAt != nil && !p.NextExecutionAt.After(at) &&
			p.StartTime != nil && !p.StartTime.After(at)
	}), nil
}

func (m *memStore) DueClosePools(_ context.Context, at time.Time, ex []string) ([]entity.Pool, error) {
	return m.list(func(p *entity.Pool) bool {
		return !excluded(ex, p.ChainID) && p.Status != entity.PoolStatusEnded &&
			p.CurrentTargetTokenBalance > 0 && p.StartTime != nil && !p.StartTime.After(at)
	}), nil
}

func (m *memStore) DistinctOwners(_ context.Context, ex []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range m.list(func(p *entity.Pool) bool { return !excluded(ex, p.ChainID) }) {
		if p.OwnerAddress != "" && !seen[p.OwnerAddress] {
			seen[p.OwnerAddress] = true
			out = append(out, p.OwnerAddress)
		}
	}
	return out, nil
}

func (m *memStore) UpsertPools(_ context.Context, writes []db.PoolWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, writes)
	for _, w := range writes {
		p, ok := m.pools[w.Snapshot.ID]
		if !ok {
			p = &entity.Pool{CreatedAt: now}
			m.pools[w.Snapshot.ID] = p
		}
		w.Snapshot.Apply(p)
		if w.Metrics != nil {
			w.Metrics.Apply(p)
		}
		p.UpdatedAt = now
	}
	return nil
}

func (m *memStore) UpdatePoolDates(_ context.Context, dates map[primitive.ObjectID]entity.PoolDates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dates = append(m.dates, dates)
	for id, d := range dates {
		p, ok := m.pools[id]
		if !ok {
			p = &entity.Pool{ID: id}
			m.pools[id] = p
		}
		if d.ClosedAt != nil {
			p.ClosedAt = d.ClosedAt
		}
		if d.EndedAt != nil {
			p.EndedAt = d.EndedAt
		}
		if d.ClosedPositionAt != nil {
			p.ClosedPositionAt = d.ClosedPositionAt
		}
	}
	return nil
}

func (m *memStore) CreateEmptyPool(_ context.Context, o string, chainID entity.ChainID) (*entity.Pool, error) {
	p := entity.Pool{ID: primitive.NewObjectID(), ChainID: chainID, OwnerAddress: o, Status: entity.PoolStatusCreated, CreatedAt: now, UpdatedAt: now}
	m.add(p)
	return &p, nil
}

func (m *memStore) OwnerTokenTotals(_ context.Context, o string) (map[string]float64, map[string]float64, error) {
	base, target := map[string]float64{}, map[string]float64{}
	for _, p := range m.list(func(p *entity.Pool) bool { return p.OwnerAddress == o }) {
		base[p.BaseTokenAddress] += p.RemainingBaseTokenBalance
		target[p.TargetTokenAddress] += p.CurrentTargetTokenBalance
	}
	return base, target, nil
}

func (m *memStore) UpsertActivities(_ context.Context, acts []entity.PoolActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range acts {
		m.activities[a.EventHash] = a
	}
	return nil
}

func (m *memStore) GetSyncStatus(_ context.Context, chainID entity.ChainID) (*entity.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[chainID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) AdvanceSyncedBlock(_ context.Context, chainID entity.ChainID, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.statuses[chainID]; ok && block > s.SyncedBlock {
		s.SyncedBlock = block
	}
	return nil
}

func (m *memStore) ListWhitelist(context.Context) ([]entity.Whitelist, error) {
	return m.whitelist, nil
}

func (m *memStore) UpsertUserTokens(_ context.Context, tokens []entity.UserToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		m.userTokens[t.OwnerAddress+"/"+strings.ToLower(t.TokenAddress)] = t
	}
	return nil
}

func (m *memStore) cursor(chainID entity.ChainID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[chainID].SyncedBlock
}

type fakeReader struct {
	mu           sync.Mutex
	machines     map[string]chain.Machine
	height       uint64
	events       []chain.Event
	quoteOut     *big.Int
	quoteErr     error
	fetchErr     error
	fetchCalls   atomic.Int32
	batchCalls   atomic.Int32
	quoteBatches [][]chain.QuoteRequest
	feeDelay     time.Duration
	feeInFlight  atomic.Int32
	feePeak      atomic.Int32
}

func newFakeReader() *fakeReader {
	return &fakeReader{machines: map[string]chain.Machine{}, quoteOut: big.NewInt(5_000_000)}
}

func (r *fakeReader) put(m chain.Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[m.Id] = m
}

func (r *fakeReader) FetchMachine(_ context.Context, id string) (chain.MachineState, error) {
	r.fetchCalls.Add(1)
	if r.fetchErr != nil {
		return chain.MachineState{}, r.fetchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return chain.MachineState{Machine: r.machines[id]}, nil
}

func (r *fakeReader) FetchMachines(_ context.Context, ids []string) ([]chain.MachineState, error) {
	r.batchCalls.Add(1)
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chain.MachineState, len(ids))
	for i, id := range ids {
		out[i] = chain.MachineState{Machine: r.machines[id]}
	}
	return out, nil
}

func (r *fakeReader) BestFee(context.Context, common.Address, common.Address, common.Address, *big.Int) (*big.Int, error) {
	n := r.feeInFlight.Add(1)
	defer r.feeInFlight.Add(-1)
	for {
		peak := r.feePeak.Load()
		if n <= peak || r.feePeak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(r.feeDelay)
	return big.NewInt(500), nil
}

func (r *fakeReader) Quote(_ context.Context, req chain.QuoteRequest) (chain.Quote, error) {
	if r.quoteErr != nil {
		return chain.Quote{}, r.quoteErr
	}
	return chain.Quote{AmountIn: req.Amount, AmountOut: r.quoteOut}, nil
}

func (r *fakeReader) Quotes(_ context.Context, reqs []chain.QuoteRequest) ([]chain.Quote, error) {
	r.mu.Lock()
	r.quoteBatches = append(r.quoteBatches, reqs)
	r.mu.Unlock()
	out := make([]chain.Quote, len(reqs))
	for i, req := range reqs {
		out[i] = chain.Quote{AmountIn: req.Amount, AmountOut: r.quoteOut}
	}
	return out, nil
}

func (r *fakeReader) FetchEvents(_ context.Context, from, diff uint64) (chain.EventBatch, error) {
	to, ok := chain.EventWindow(from, diff, r.height)
	if !ok {
		return chain.EventBatch{FromBlock: from, SyncedBlock: from - 1}, nil
	}
	batch := chain.EventBatch{FromBlock: from, SyncedBlock: to}
	for _, ev := range r.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	fail   map[string]bool
	swaps  []string
	closes []string
}

var errReverted = errors.New("execution reverted")

func (e *fakeExecutor) TrySwap(_ context.Context, id string, _ *big.Int) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[id] {
		return common.Hash{}, errReverted
	}
	e.swaps = append(e.swaps, id)
	return common.HexToHash("0x5a"), nil
}

func (e *fakeExecutor) TryClosePosition(_ context.Context, id string, _ *big.Int) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[id] {
		return common.Hash{}, errReverted
	}
	e.closes = append(e.closes, id)
	return common.HexToHash("0xc1"), nil
}

type fakeChains struct {
	readers   map[entity.ChainID]*fakeReader
	executors map[entity.ChainID]*fakeExecutor
}

func (c *fakeChains) ChainIDs() []entity.ChainID {
	out := make([]entity.ChainID, 0, len(c.readers))
	for id := range c.readers {
		out = append(out, id)
	}
	return out
}

func (c *fakeChains) Reader(_ context.Context, id entity.ChainID) (Reader, error) {
	r, ok := c.readers[id]
	if !ok {
		return nil, config.ErrUnknownChain
	}
	return r, nil
}

func (c *fakeChains) Executor(_ context.Context, id entity.ChainID) (Executor, error) {
	e, ok := c.executors[id]
	if !ok {
		return nil, config.ErrUnknownChain
	}
	return e, nil
}

type recorder struct {
	mu      sync.Mutex
	updated []string
	failed  []string
}

func (r *recorder) PoolUpdated(_ context.Context, _ entity.ChainID, poolID, _ string, _ entity.PoolStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, poolID)
}

func (r *recorder) ExecutionFailed(_ context.Context, _ entity.ChainID, poolID, _ string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, poolID)
}

func storedPool(chainID entity.ChainID, updatedAgo time.Duration) entity.Pool {
	start := now.Add(-24 * time.Hour)
	next := now.Add(-time.Minute)
	return entity.Pool{
		ID:                        primitive.NewObjectID(),
		ChainID:                   chainID,
		OwnerAddress:              owner,
		BaseTokenAddress:          baseToken.Hex(),
		TargetTokenAddress:        targetToken.Hex(),
		AMMRouterAddress:          router.Hex(),
		Status:                    entity.PoolStatusActive,
		CurrentTargetTokenBalance: 1,
		StartTime:                 &start,
		NextExecutionAt:           &next,
		UpdatedAt:                 now.Add(-updatedAgo),
	}
}

func machineOf(p entity.Pool) chain.Machine {
	n := big.NewInt
	return chain.Machine{
		Id:                        p.ID.Hex(),
		Owner:                     common.HexToAddress(p.OwnerAddress),
		BaseTokenAddress:          baseToken,
		TargetTokenAddress:        targetToken,
		AmmRouterAddress:          router,
		BatchVolume:               n(1_000_000),
		Frequency:                 n(3600),
		StartAt:                   n(now.Add(-24 * time.Hour).Unix()),
		NextScheduledExecutionAt:  n(now.Add(time.Hour).Unix()),
		Status:                    1,
		ExecutedBatchAmount:       n(4),
		TotalDepositedBaseAmount:  n(10_000_000),
		TotalSwappedBaseAmount:    n(4_000_000),
		TotalReceivedTargetAmount: n(2_000_000),
		BaseTokenBalance:          n(6_000_000),
		TargetTokenBalance:        n(2_000_000),
	}
}
