// Package poolsync reconciles on-chain machine state into the pool store, ingests program
// events into the activity ledger, and drives the trade execution path.
package poolsync

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/config"
	"github.com/systemis/funding-machine-backend/pkg/db"
	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/mapper"
	"github.com/systemis/funding-machine-backend/pkg/notify"
)

var (
	// ErrMachineNotInitialized is returned when a pool has no record on-chain yet.
	ErrMachineNotInitialized = errors.New("machine not initialized")
	// ErrPoolNotFound is returned when a pool id matches no stored pool.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrSyncStatusMissing is returned when an eligible chain has no ingestion cursor.
	ErrSyncStatusMissing = errors.New("sync status missing")
)

// Fleet sync window. Pools touched in the last RecentlyTouched are left to the execution path.
const (
	SyncLookback    = 7 * 24 * time.Hour
	RecentlyTouched = 5 * time.Minute
)

// Store is the slice of the pool store the syncer needs.
type Store interface {
	FindPoolByID(ctx context.Context, id primitive.ObjectID) (*entity.Pool, error)
	FindPoolsByOwner(ctx context.Context, owner string, chainID entity.ChainID) ([]entity.Pool, error)
	SelectPoolsForSync(ctx context.Context, sel db.SyncSelection) ([]db.ChainPools, error)
	DueBuyPools(ctx context.Context, now time.Time, excludedChains []string) ([]entity.Pool, error)
	DueClosePools(ctx context.Context, now time.Time, excludedChains []string) ([]entity.Pool, error)
	DistinctOwners(ctx context.Context, excludedChains []string) ([]string, error)
	UpsertPools(ctx context.Context, pools []db.PoolWrite) error
	UpdatePoolDates(ctx context.Context, dates map[primitive.ObjectID]entity.PoolDates) error
	CreateEmptyPool(ctx context.Context, owner string, chainID entity.ChainID) (*entity.Pool, error)
	OwnerTokenTotals(ctx context.Context, owner string) (base, target map[string]float64, err error)
	UpsertActivities(ctx context.Context, activities []entity.PoolActivity) error
	GetSyncStatus(ctx context.Context, chainID entity.ChainID) (*entity.SyncStatus, error)
	AdvanceSyncedBlock(ctx context.Context, chainID entity.ChainID, block uint64) error
	ListWhitelist(ctx context.Context) ([]entity.Whitelist, error)
	UpsertUserTokens(ctx context.Context, tokens []entity.UserToken) error
}

// Reader is the chain read surface used by the syncer.
type Reader interface {
	FetchMachine(ctx context.Context, id string) (chain.MachineState, error)
	FetchMachines(ctx context.Context, ids []string) ([]chain.MachineState, error)
	BestFee(ctx context.Context, base, target, router common.Address, amount *big.Int) (*big.Int, error)
	Quote(ctx context.Context, req chain.QuoteRequest) (chain.Quote, error)
	Quotes(ctx context.Context, reqs []chain.QuoteRequest) ([]chain.Quote, error)
	FetchEvents(ctx context.Context, fromBlock, blockDiff uint64) (chain.EventBatch, error)
}

// Executor sends the operator transactions of a chain.
type Executor interface {
	TrySwap(ctx context.Context, machineID string, fee *big.Int) (common.Hash, error)
	TryClosePosition(ctx context.Context, machineID string, fee *big.Int) (common.Hash, error)
}

// Chains resolves the reader and executor of a chain.
type Chains interface {
	ChainIDs() []entity.ChainID
	Reader(ctx context.Context, chainID entity.ChainID) (Reader, error)
	Executor(ctx context.Context, chainID entity.ChainID) (Executor, error)
}

type factoryChains struct {
	networks *config.Networks
	factory  *chain.Factory
}

// FromFactory exposes a chain factory as Chains.
func FromFactory(networks *config.Networks, f *chain.Factory) Chains {
	return &factoryChains{networks: networks, factory: f}
}

func (c *factoryChains) ChainIDs() []entity.ChainID {
	return c.networks.ChainIDs()
}

func (c *factoryChains) Reader(ctx context.Context, chainID entity.ChainID) (Reader, error) {
	r, err := c.factory.Reader(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *factoryChains) Executor(ctx context.Context, chainID entity.ChainID) (Executor, error) {
	e, err := c.factory.Executor(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Syncer runs the pool reconciliation, event ingestion and execution passes.
type Syncer struct {
	Logger   *zap.Logger
	Store    Store
	Chains   Chains
	Policy   config.ChainPolicy
	Notifier notify.Sender
	Now      func() time.Time

	pool pond.Pool
	// lookups runs per-pool RPC lookups issued from inside pool tasks.
	lookups pond.Pool
}

// New builds a syncer whose fan-out runs on at most parallelism workers.
func New(logger *zap.Logger, store Store, chains Chains, policy config.ChainPolicy, notifier notify.Sender, parallelism int) *Syncer {
	if parallelism < 1 {
		parallelism = 1
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Syncer{
		Logger:   logger,
		Store:    store,
		Chains:   chains,
		Policy:   policy,
		Notifier: notifier,
		Now:      time.Now,
		pool:     pond.NewPool(parallelism, pond.WithQueueSize(parallelism*64)),
		lookups:  pond.NewPool(parallelism),
	}
}

// Close waits for in-flight fan-out work and stops the worker pool.
func (s *Syncer) Close() {
	s.pool.StopAndWait()
	s.lookups.StopAndWait()
}

func (s *Syncer) tokens(ctx context.Context) (mapper.TokenBook, error) {
	wl, err := s.Store.ListWhitelist(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}
	return mapper.NewTokenBook(wl), nil
}

// SyncPoolByID overwrites one pool from its on-chain record, then merges its pricing
// figures. Pools on non-EVM or stopped chains are left alone.
func (s *Syncer) SyncPoolByID(ctx context.Context, id primitive.ObjectID) error {
	pool, err := s.Store.FindPoolByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPoolNotFound, id.Hex())
		}
		return err
	}
	if !s.Policy.Syncable(pool.ChainID) {
		s.Logger.Debug("skipping pool on unsyncable chain",
			zap.String("poolId", id.Hex()),
			zap.String("chainId", string(pool.ChainID)))
		return nil
	}

	reader, err := s.Chains.Reader(ctx, pool.ChainID)
	if err != nil {
		return fmt.Errorf("reader %s: %w", pool.ChainID, err)
	}
	state, err := reader.FetchMachine(ctx, pool.MachineID())
	if err != nil {
		return fmt.Errorf("fetch machine %s: %w", id.Hex(), err)
	}
	now := s.Now()
	snap := mapper.AggregatePool(pool.ChainID, state, now)
	if snap == nil {
		return fmt.Errorf("%w: %s", ErrMachineNotInitialized, id.Hex())
	}
	if err := s.Store.UpsertPools(ctx, []db.PoolWrite{{Snapshot: snap}}); err != nil {
		return fmt.Errorf("upsert pool %s: %w", id.Hex(), err)
	}

	tokens, err := s.tokens(ctx)
	if err != nil {
		return err
	}
	snap.Apply(pool)
	metrics := mapper.ComputeROI(pool, s.positionValue(ctx, reader, pool), tokens)
	metrics.ProgressPercent = mapper.ProgressPercent(pool, now)
	if err := s.Store.UpsertPools(ctx, []db.PoolWrite{{Snapshot: snap, Metrics: &metrics}}); err != nil {
		return fmt.Errorf("upsert pool metrics %s: %w", id.Hex(), err)
	}
	s.Notifier.PoolUpdated(ctx, pool.ChainID, id.Hex(), pool.OwnerAddress, pool.Status)
	return nil
}

// positionValue simulates closing the whole target position back into the base token. When
// the simulation fails the spent amount stands in, which prices the position at break-even.
func (s *Syncer) positionValue(ctx context.Context, reader Reader, pool *entity.Pool) *big.Int {
	base := common.HexToAddress(pool.BaseTokenAddress)
	target := common.HexToAddress(pool.TargetTokenAddress)
	router := common.HexToAddress(pool.AMMRouterAddress)
	amount := mapper.ClosingAmount(pool)

	fee, err := reader.BestFee(ctx, target, base, router, amount)
	if err != nil {
		s.Logger.Warn("best fee failed, quoting without fee",
			zap.String("poolId", pool.ID.Hex()), zap.Error(err))
		fee = new(big.Int)
	}
	q, err := reader.Quote(ctx, chain.QuoteRequest{Base: target, Target: base, Router: router, Amount: amount, Fee: fee})
	if err != nil {
		s.Logger.Warn("closing quote failed, using spent amount",
			zap.String("poolId", pool.ID.Hex()), zap.Error(err))
		return mapper.SpentAmount(pool)
	}
	return q.AmountOut
}

// SyncPools refreshes every pool touched in the last week but not in the last few minutes,
// one batched pass per chain. A failing chain is logged and does not stop the others.
func (s *Syncer) SyncPools(ctx context.Context) error {
	now := s.Now()
	groups, err := s.Store.SelectPoolsForSync(ctx, db.SyncSelection{
		ExcludedChains: s.Policy.Excluded(),
		Statuses:       entity.SyncableStatuses,
		UpdatedAfter:   now.Add(-SyncLookback),
		UpdatedBefore:  now.Add(-RecentlyTouched),
	})
	if err != nil {
		return fmt.Errorf("select pools: %w", err)
	}
	s.Logger.Info("syncing pools", zap.Int("chains", len(groups)))

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, g := range groups {
		g := g
		if !s.Policy.Syncable(g.ChainID) {
			continue
		}
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			if err := s.syncChainPools(groupCtx, g.ChainID, g.Pools); err != nil {
				s.Logger.Error("chain pool sync failed",
					zap.String("chainId", string(g.ChainID)),
					zap.Int("pools", len(g.Pools)),
					zap.Error(err))
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.Logger.Warn("pool sync group encountered error", zap.Error(err))
	}
	return nil
}

// SyncPoolsByOwnerAddress runs the batched pass over one owner's pools on one chain.
func (s *Syncer) SyncPoolsByOwnerAddress(ctx context.Context, owner string, chainID entity.ChainID) error {
	if !s.Policy.Syncable(chainID) {
		return nil
	}
	pools, err := s.Store.FindPoolsByOwner(ctx, owner, chainID)
	if err != nil {
		return fmt.Errorf("find pools of %s: %w", owner, err)
	}
	return s.syncChainPools(ctx, chainID, pools)
}

// syncChainPools reads every machine in one round trip, drops the ones not yet initialized,
// quotes all closing positions in a second round trip, and writes everything in one bulk upsert.
func (s *Syncer) syncChainPools(ctx context.Context, chainID entity.ChainID, pools []entity.Pool) error {
	logger := s.Logger.With(zap.String("chainId", string(chainID)))
	if len(pools) == 0 {
		logger.Debug("no pools to sync")
		return nil
	}
	reader, err := s.Chains.Reader(ctx, chainID)
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}

	ids := make([]string, len(pools))
	for i := range pools {
		ids[i] = pools[i].MachineID()
	}
	states, err := reader.FetchMachines(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch machines: %w", err)
	}
	now := s.Now()
	snaps := mapper.AggregatePools(chainID, states, now)

	type synced struct {
		pool entity.Pool
		snap *entity.PoolSnapshot
	}
	valid := make([]synced, 0, len(snaps))
	for i, snap := range snaps {
		if snap == nil || i >= len(pools) {
			continue
		}
		p := pools[i]
		snap.Apply(&p)
		valid = append(valid, synced{pool: p, snap: snap})
	}
	if len(valid) == 0 {
		logger.Info("no initialized pools on chain", zap.Int("selected", len(pools)))
		return nil
	}

	reqs := make([]chain.QuoteRequest, len(valid))
	for i := range valid {
		p := &valid[i].pool
		reqs[i] = chain.QuoteRequest{
			Base:   common.HexToAddress(p.TargetTokenAddress),
			Target: common.HexToAddress(p.BaseTokenAddress),
			Router: common.HexToAddress(p.AMMRouterAddress),
			Amount: mapper.ClosingAmount(p),
		}
	}
	if err := s.closingFees(ctx, reader, logger, reqs); err != nil {
		return err
	}
	quotes, err := reader.Quotes(ctx, reqs)
	if err != nil {
		return fmt.Errorf("quotes: %w", err)
	}

	tokens, err := s.tokens(ctx)
	if err != nil {
		return err
	}
	writes := make([]db.PoolWrite, len(valid))
	for i := range valid {
		p := &valid[i].pool
		var value *big.Int
		if i < len(quotes) {
			value = quotes[i].AmountOut
		}
		metrics := mapper.ComputeROI(p, value, tokens)
		metrics.ProgressPercent = mapper.ProgressPercent(p, now)
		writes[i] = db.PoolWrite{Snapshot: valid[i].snap, Metrics: &metrics}
	}
	if err := s.Store.UpsertPools(ctx, writes); err != nil {
		return fmt.Errorf("upsert pools: %w", err)
	}
	for i := range valid {
		p := &valid[i].pool
		s.Notifier.PoolUpdated(ctx, chainID, p.ID.Hex(), p.OwnerAddress, p.Status)
	}
	logger.Info("synced pools", zap.Int("selected", len(pools)), zap.Int("synced", len(valid)))
	return nil
}

// closingFees fills the best fee tier of every closing quote, one concurrent lookup per
// request. A failed lookup quotes with the zero tier.
func (s *Syncer) closingFees(ctx context.Context, reader Reader, logger *zap.Logger, reqs []chain.QuoteRequest) error {
	group := s.lookups.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range reqs {
		req := &reqs[i]
		group.Submit(func() {
			fee, err := reader.BestFee(groupCtx, req.Base, req.Target, req.Router, req.Amount)
			if err != nil {
				logger.Warn("best fee failed", zap.String("base", req.Base.Hex()),
					zap.String("target", req.Target.Hex()), zap.Error(err))
				fee = new(big.Int)
			}
			req.Fee = fee
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("best fees: %w", err)
	}
	return ctx.Err()
}

// CreateEmptyPool stores a placeholder pool the owner initializes on-chain afterwards.
func (s *Syncer) CreateEmptyPool(ctx context.Context, owner string, chainID entity.ChainID) (*entity.Pool, error) {
	if owner == "" {
		return nil, errors.New("owner address is required")
	}
	return s.Store.CreateEmptyPool(ctx, owner, chainID)
}
