package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/cache"
	"github.com/systemis/funding-machine-backend/pkg/config"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// ErrNoOperatorKey is returned when an executor is requested for a chain without an operator key.
var ErrNoOperatorKey = errors.New("operator key is not configured")

// Factory dials each configured chain once and caches its reader and executor.
type Factory struct {
	networks *config.Networks
	fees     cache.Cache
	logger   *zap.Logger

	dialMu    sync.Mutex
	clients   *xsync.Map[entity.ChainID, *ethclient.Client]
	readers   *xsync.Map[entity.ChainID, *Reader]
	executors *xsync.Map[entity.ChainID, *Executor]
}

// NewFactory builds a factory over the network registry.
func NewFactory(networks *config.Networks, fees cache.Cache, logger *zap.Logger) *Factory {
	return &Factory{
		networks:  networks,
		fees:      fees,
		logger:    logger,
		clients:   xsync.NewMap[entity.ChainID, *ethclient.Client](),
		readers:   xsync.NewMap[entity.ChainID, *Reader](),
		executors: xsync.NewMap[entity.ChainID, *Executor](),
	}
}

// ContractsOf decodes the program addresses of a network.
func ContractsOf(net config.Network) Contracts {
	return Contracts{
		Machine:    common.HexToAddress(net.MachineProgramAddress),
		Registry:   common.HexToAddress(net.MachineRegistryProgramAddress),
		Vault:      common.HexToAddress(net.MachineVaultProgramAddress),
		Multicall3: common.HexToAddress(net.Multicall3ProgramAddress),
	}
}

func (f *Factory) dial(ctx context.Context, chainID entity.ChainID, net config.Network) (*ethclient.Client, error) {
	if c, ok := f.clients.Load(chainID); ok {
		return c, nil
	}
	f.dialMu.Lock()
	defer f.dialMu.Unlock()
	if c, ok := f.clients.Load(chainID); ok {
		return c, nil
	}
	c, err := ethclient.DialContext(ctx, net.InternalRPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chainID, err)
	}
	f.clients.Store(chainID, c)
	return c, nil
}

// Reader returns the cached reader of the chain, dialing on first use.
func (f *Factory) Reader(ctx context.Context, chainID entity.ChainID) (*Reader, error) {
	if r, ok := f.readers.Load(chainID); ok {
		return r, nil
	}
	net, err := f.networks.Get(chainID)
	if err != nil {
		return nil, err
	}
	client, err := f.dial(ctx, chainID, net)
	if err != nil {
		return nil, err
	}
	r, _ := f.readers.LoadOrStore(chainID, NewReader(chainID, client, ContractsOf(net), f.fees, f.logger, Opts{
		RPS:   net.RPS,
		Burst: net.Burst,
	}))
	return r, nil
}

// Executor returns the cached executor of the chain, dialing on first use.
func (f *Factory) Executor(ctx context.Context, chainID entity.ChainID) (*Executor, error) {
	if e, ok := f.executors.Load(chainID); ok {
		return e, nil
	}
	net, err := f.networks.Get(chainID)
	if err != nil {
		return nil, err
	}
	if net.OperatorSecretKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoOperatorKey, chainID)
	}
	client, err := f.dial(ctx, chainID, net)
	if err != nil {
		return nil, err
	}
	exec, err := NewExecutor(client, ContractsOf(net).Machine, net.OperatorSecretKey, f.logger.With(zap.String("chainId", string(chainID))))
	if err != nil {
		return nil, fmt.Errorf("executor %s: %w", chainID, err)
	}
	e, loaded := f.executors.LoadOrStore(chainID, exec)
	if !loaded {
		f.logger.Info("executor ready",
			zap.String("chainId", string(chainID)),
			zap.String("operator", e.Operator().Hex()))
	}
	return e, nil
}

// Close drops every dialed connection.
func (f *Factory) Close() {
	f.clients.Range(func(id entity.ChainID, c *ethclient.Client) bool {
		c.Close()
		return true
	})
}
