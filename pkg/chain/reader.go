package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/systemis/funding-machine-backend/pkg/cache"
	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/retry"
)

// FeeTiers are the pool fee candidates tried by BestFee, in hundredths of a basis point.
var FeeTiers = []int64{100, 500, 3000, 10000}

// Opts tunes a Reader.
type Opts struct {
	RPS    int
	Burst  int
	Retry  retry.Config
	FeeTTL time.Duration
}

func (o Opts) withDefaults() Opts {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry = retry.RPCConfig()
	}
	if o.FeeTTL <= 0 {
		o.FeeTTL = cache.Hard
	}
	return o
}

// Reader batches the machine program reads of a single chain. It carries no business rules.
type Reader struct {
	ChainID   entity.ChainID
	client    Client
	contracts Contracts
	fees      cache.Cache
	limiter   *rate.Limiter
	opts      Opts
	logger    *zap.Logger
}

// NewReader builds a reader. fees may be nil, in which case best fees are never cached.
func NewReader(chainID entity.ChainID, client Client, contracts Contracts, fees cache.Cache, logger *zap.Logger, opts Opts) *Reader {
	opts = opts.withDefaults()
	return &Reader{
		ChainID:   chainID,
		client:    client,
		contracts: contracts,
		fees:      fees,
		limiter:   rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		opts:      opts,
		logger:    logger.With(zap.String("chainId", string(chainID))),
	}
}

func (r *Reader) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.WithBackoff(ctx, r.opts.Retry, r.logger, op, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		return fn(ctx)
	})
}

// BlockNumber returns the current chain height.
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	err := r.do(ctx, "block_number", func(ctx context.Context) error {
		var err error
		height, err = r.client.BlockNumber(ctx)
		return err
	})
	return height, err
}

// FetchMachine reads one machine and its stop conditions.
func (r *Reader) FetchMachine(ctx context.Context, id string) (MachineState, error) {
	states, err := r.FetchMachines(ctx, []string{id})
	if err != nil {
		return MachineState{}, err
	}
	return states[0], nil
}

// FetchMachines reads every machine and its stop conditions in one multicall round trip.
// Machines the registry does not know come back with an empty Id.
func (r *Reader) FetchMachines(ctx context.Context, ids []string) ([]MachineState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	calls := make([]Call3, 0, len(ids)*2)
	for _, id := range ids {
		machineData, err := MachineRegistryABI.Pack("machines", id)
		if err != nil {
			return nil, fmt.Errorf("pack machines(%s): %w", id, err)
		}
		stopData, err := MachineRegistryABI.Pack("getStopConditionsOf", id)
		if err != nil {
			return nil, fmt.Errorf("pack getStopConditionsOf(%s): %w", id, err)
		}
		calls = append(calls,
			Call3{Target: r.contracts.Registry, CallData: machineData},
			Call3{Target: r.contracts.Registry, CallData: stopData},
		)
	}

	results, err := r.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("fetch machines: %w", err)
	}

	states := make([]MachineState, len(ids))
	for i := range ids {
		machine, err := decodeMachine(results[i*2].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("decode machine %s: %w", ids[i], err)
		}
		conds, err := decodeStopConditions(results[i*2+1].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("decode stop conditions %s: %w", ids[i], err)
		}
		states[i] = MachineState{Machine: machine, StopConditions: conds}
	}
	return states, nil
}

func decodeMachine(data []byte) (Machine, error) {
	out, err := MachineRegistryABI.Unpack("machines", data)
	if err != nil {
		return Machine{}, err
	}
	return convert[Machine](out[0])
}

func decodeStopConditions(data []byte) ([]StopCondition, error) {
	out, err := MachineRegistryABI.Unpack("getStopConditionsOf", data)
	if err != nil {
		return nil, err
	}
	return convert[[]StopCondition](out[0])
}

func decodeQuote(data []byte) (Quote, error) {
	out, err := MachineVaultABI.Unpack("getCurrentQuote", data)
	if err != nil {
		return Quote{}, err
	}
	amountIn, okIn := out[0].(*big.Int)
	amountOut, okOut := out[1].(*big.Int)
	if !okIn || !okOut {
		return Quote{}, fmt.Errorf("unexpected getCurrentQuote output %T, %T", out[0], out[1])
	}
	return Quote{AmountIn: amountIn, AmountOut: amountOut}, nil
}

func packQuote(q QuoteRequest) ([]byte, error) {
	fee := q.Fee
	if fee == nil {
		fee = new(big.Int)
	}
	amount := q.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return MachineVaultABI.Pack("getCurrentQuote", q.Base, q.Target, q.Router, amount, fee)
}

func feeCacheKey(chainID entity.ChainID, base, target, router common.Address, amount *big.Int) string {
	return fmt.Sprintf("fee:%s:%s-%s-%s-%s", chainID, base.Hex(), target.Hex(), router.Hex(), amount.String())
}

// BestFee simulates the swap on every fee tier and returns the tier with the largest
// output, or zero when no tier quotes. The answer is cached per route and amount.
func (r *Reader) BestFee(ctx context.Context, base, target, router common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil {
		amount = new(big.Int)
	}
	key := feeCacheKey(r.ChainID, base, target, router, amount)
	if r.fees != nil {
		cached, ok, err := r.fees.Get(ctx, key)
		if err != nil {
			r.logger.Warn("fee cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			if fee, parsed := new(big.Int).SetString(cached, 10); parsed {
				return fee, nil
			}
		}
	}

	calls := make([]Call3, 0, len(FeeTiers))
	for _, tier := range FeeTiers {
		data, err := packQuote(QuoteRequest{Base: base, Target: target, Router: router, Amount: amount, Fee: big.NewInt(tier)})
		if err != nil {
			return nil, fmt.Errorf("pack getCurrentQuote: %w", err)
		}
		calls = append(calls, Call3{Target: r.contracts.Vault, AllowFailure: true, CallData: data})
	}
	results, err := r.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("best fee: %w", err)
	}

	bestFee, bestOut := new(big.Int), new(big.Int)
	for i, res := range results {
		if !res.Success {
			continue
		}
		q, err := decodeQuote(res.ReturnData)
		if err != nil {
			continue
		}
		if bestOut.Cmp(q.AmountOut) < 0 {
			bestFee = big.NewInt(FeeTiers[i])
			bestOut = q.AmountOut
		}
	}

	if r.fees != nil {
		if err := r.fees.Set(ctx, key, bestFee.String(), r.opts.FeeTTL); err != nil {
			r.logger.Warn("fee cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return bestFee, nil
}

// Quote simulates a single swap without changing state.
func (r *Reader) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	data, err := packQuote(req)
	if err != nil {
		return Quote{}, fmt.Errorf("pack getCurrentQuote: %w", err)
	}
	var raw []byte
	err = r.do(ctx, "get_current_quote", func(ctx context.Context) error {
		var callErr error
		raw, callErr = r.client.CallContract(ctx, ethereum.CallMsg{To: &r.contracts.Vault, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return Quote{}, err
	}
	return decodeQuote(raw)
}

// Quotes simulates many swaps in one round trip. A failed simulation yields
// {AmountIn: amount, AmountOut: 0} for its slot instead of failing the batch.
func (r *Reader) Quotes(ctx context.Context, reqs []QuoteRequest) ([]Quote, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	calls := make([]Call3, 0, len(reqs))
	for _, q := range reqs {
		data, err := packQuote(q)
		if err != nil {
			return nil, fmt.Errorf("pack getCurrentQuote: %w", err)
		}
		calls = append(calls, Call3{Target: r.contracts.Vault, AllowFailure: true, CallData: data})
	}
	results, err := r.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("quotes: %w", err)
	}

	quotes := make([]Quote, len(reqs))
	for i, res := range results {
		fallback := Quote{AmountIn: reqs[i].Amount, AmountOut: new(big.Int)}
		if fallback.AmountIn == nil {
			fallback.AmountIn = new(big.Int)
		}
		if !res.Success {
			quotes[i] = fallback
			continue
		}
		q, err := decodeQuote(res.ReturnData)
		if err != nil {
			quotes[i] = fallback
			continue
		}
		quotes[i] = q
	}
	return quotes, nil
}

// EventWindow clamps a scan starting at fromBlock to min(height, fromBlock+blockDiff).
// ok is false when fromBlock is already past the chain head.
func EventWindow(fromBlock, blockDiff, height uint64) (toBlock uint64, ok bool) {
	if fromBlock > height {
		return 0, false
	}
	toBlock = fromBlock + blockDiff
	if toBlock > height {
		toBlock = height
	}
	return toBlock, true
}

// FetchEvents returns the allow-listed program events between fromBlock and the clamped
// window end, in log order. When fromBlock is past the head the batch is empty and
// SyncedBlock is fromBlock-1.
func (r *Reader) FetchEvents(ctx context.Context, fromBlock, blockDiff uint64) (EventBatch, error) {
	height, err := r.BlockNumber(ctx)
	if err != nil {
		return EventBatch{}, fmt.Errorf("block number: %w", err)
	}
	toBlock, ok := EventWindow(fromBlock, blockDiff, height)
	if !ok {
		synced := fromBlock
		if synced > 0 {
			synced--
		}
		return EventBatch{FromBlock: fromBlock, SyncedBlock: synced}, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{r.contracts.Registry, r.contracts.Vault},
	}
	var logs []types.Log
	err = r.do(ctx, "filter_logs", func(ctx context.Context) error {
		var filterErr error
		logs, filterErr = r.client.FilterLogs(ctx, query)
		return filterErr
	})
	if err != nil {
		return EventBatch{}, fmt.Errorf("filter logs [%d, %d]: %w", fromBlock, toBlock, err)
	}

	batch := EventBatch{FromBlock: fromBlock, SyncedBlock: toBlock}
	for _, lg := range logs {
		contract := MachineVaultABI
		if lg.Address == r.contracts.Registry {
			contract = MachineRegistryABI
		}
		if ev, ok := decodeLog(contract, lg); ok {
			batch.Events = append(batch.Events, ev)
		}
	}
	r.logger.Debug("fetched program events",
		zap.Uint64("fromBlock", fromBlock),
		zap.Uint64("toBlock", toBlock),
		zap.Int("logs", len(logs)),
		zap.Int("events", len(batch.Events)))
	return batch, nil
}
