package poolsync

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// Execution operations, as reported to the notifier.
const (
	OpSwap          = "swap"
	OpClosePosition = "close-position"
)

// ExecutionReport summarizes one execution pass.
type ExecutionReport struct {
	Due      int `json:"due"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Resynced int `json:"resynced"`
}

type trade func(ctx context.Context, pool *entity.Pool) (common.Hash, error)

// ExecuteDueBuys sends the next batch of every active pool whose schedule is due.
func (s *Syncer) ExecuteDueBuys(ctx context.Context) (ExecutionReport, error) {
	pools, err := s.Store.DueBuyPools(ctx, s.Now(), s.Policy.Excluded())
	if err != nil {
		return ExecutionReport{}, fmt.Errorf("select due buys: %w", err)
	}
	return s.execute(ctx, OpSwap, pools, s.trySwap), nil
}

// ExecuteDueCloses tries to close the position of every started pool still holding target tokens.
func (s *Syncer) ExecuteDueCloses(ctx context.Context) (ExecutionReport, error) {
	pools, err := s.Store.DueClosePools(ctx, s.Now(), s.Policy.Excluded())
	if err != nil {
		return ExecutionReport{}, fmt.Errorf("select due closes: %w", err)
	}
	return s.execute(ctx, OpClosePosition, pools, s.tryClosePosition), nil
}

// execute runs op on every pool concurrently. A failed trade is logged and reported without
// touching its siblings, and every pool is resynced afterwards whatever the outcome.
func (s *Syncer) execute(ctx context.Context, op string, pools []entity.Pool, do trade) ExecutionReport {
	var sent, failed, resynced atomic.Int32
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := range pools {
		p := pools[i]
		if !s.Policy.Syncable(p.ChainID) {
			continue
		}
		group.Submit(func() {
			logger := s.Logger.With(
				zap.String("op", op),
				zap.String("poolId", p.ID.Hex()),
				zap.String("chainId", string(p.ChainID)))
			defer func() {
				// The resync outlives a trade that hit its deadline.
				rctx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), time.Minute)
				defer cancel()
				if err := s.SyncPoolByID(rctx, p.ID); err != nil {
					logger.Warn("post-execution resync failed", zap.Error(err))
					return
				}
				resynced.Add(1)
			}()

			hash, err := do(groupCtx, &p)
			if err != nil {
				failed.Add(1)
				logger.Error("execution failed", zap.Error(err))
				s.Notifier.ExecutionFailed(groupCtx, p.ChainID, p.ID.Hex(), op, err)
				return
			}
			sent.Add(1)
			logger.Info("execution sent", zap.String("txHash", hash.Hex()))
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.Logger.Warn("execution group encountered error", zap.String("op", op), zap.Error(err))
	}

	report := ExecutionReport{
		Due:      len(pools),
		Sent:     int(sent.Load()),
		Failed:   int(failed.Load()),
		Resynced: int(resynced.Load()),
	}
	s.Logger.Info("execution pass done",
		zap.String("op", op),
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed))
	return report
}

func (s *Syncer) machine(ctx context.Context, pool *entity.Pool) (Reader, chain.Machine, error) {
	reader, err := s.Chains.Reader(ctx, pool.ChainID)
	if err != nil {
		return nil, chain.Machine{}, fmt.Errorf("reader: %w", err)
	}
	state, err := reader.FetchMachine(ctx, pool.MachineID())
	if err != nil {
		return nil, chain.Machine{}, fmt.Errorf("fetch machine: %w", err)
	}
	if state.Machine.Id == "" {
		return nil, chain.Machine{}, ErrMachineNotInitialized
	}
	return reader, state.Machine, nil
}

func (s *Syncer) trySwap(ctx context.Context, pool *entity.Pool) (common.Hash, error) {
	reader, m, err := s.machine(ctx, pool)
	if err != nil {
		return common.Hash{}, err
	}
	fee, err := reader.BestFee(ctx, m.BaseTokenAddress, m.TargetTokenAddress, m.AmmRouterAddress, orZero(m.BatchVolume))
	if err != nil {
		return common.Hash{}, fmt.Errorf("best fee: %w", err)
	}
	exec, err := s.Chains.Executor(ctx, pool.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("executor: %w", err)
	}
	return exec.TrySwap(ctx, pool.MachineID(), fee)
}

func (s *Syncer) tryClosePosition(ctx context.Context, pool *entity.Pool) (common.Hash, error) {
	reader, m, err := s.machine(ctx, pool)
	if err != nil {
		return common.Hash{}, err
	}
	fee, err := reader.BestFee(ctx, m.TargetTokenAddress, m.BaseTokenAddress, m.AmmRouterAddress, orZero(m.TargetTokenBalance))
	if err != nil {
		return common.Hash{}, fmt.Errorf("best fee: %w", err)
	}
	exec, err := s.Chains.Executor(ctx, pool.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("executor: %w", err)
	}
	return exec.TryClosePosition(ctx, pool.MachineID(), fee)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
