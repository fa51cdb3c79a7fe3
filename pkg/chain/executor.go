package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrTxReverted is returned when an execution transaction is mined with a failed status.
var ErrTxReverted = errors.New("transaction reverted")

// Backend is what the executor needs to sign, send, and confirm transactions.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Executor sends operator transactions to the machine program. Nonce assignment and
// broadcast are serialized per chain; receipts are awaited concurrently.
type Executor struct {
	backend  Backend
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	logger   *zap.Logger

	mu           sync.Mutex
	signer       *bind.TransactOpts
	pollInterval time.Duration
}

// NewExecutor parses the hex operator key and binds the machine program.
func NewExecutor(backend Backend, machine common.Address, operatorKey string, logger *zap.Logger) (*Executor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	return &Executor{
		backend:      backend,
		contract:     bind.NewBoundContract(machine, MachineChefABI, backend, backend, backend),
		key:          key,
		logger:       logger,
		pollInterval: 2 * time.Second,
	}, nil
}

// Operator returns the address the executor signs with.
func (e *Executor) Operator() common.Address {
	return crypto.PubkeyToAddress(e.key.PublicKey)
}

func (e *Executor) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if e.signer != nil {
		return e.signer, nil
	}
	chainID, err := e.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(e.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("keyed transactor: %w", err)
	}
	e.signer = signer
	return signer, nil
}

// TrySwap asks the machine program to execute the next DCA batch with the given fee tier.
func (e *Executor) TrySwap(ctx context.Context, machineID string, fee *big.Int) (common.Hash, error) {
	return e.send(ctx, "tryMakingDCASwap", machineID, fee)
}

// TryClosePosition asks the machine program to sell the whole target balance back.
func (e *Executor) TryClosePosition(ctx context.Context, machineID string, fee *big.Int) (common.Hash, error) {
	return e.send(ctx, "tryClosingPosition", machineID, fee)
}

func (e *Executor) send(ctx context.Context, method, machineID string, fee *big.Int) (common.Hash, error) {
	if fee == nil {
		fee = new(big.Int)
	}

	tx, err := e.broadcast(ctx, method, machineID, fee)
	if err != nil {
		return common.Hash{}, err
	}
	e.logger.Info("execution transaction sent",
		zap.String("method", method),
		zap.String("machineId", machineID),
		zap.String("fee", fee.String()),
		zap.String("tx", tx.Hash().Hex()))

	receipt, err := e.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return tx.Hash(), fmt.Errorf("%s(%s) receipt: %w", method, machineID, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("%s(%s) %s: %w", method, machineID, tx.Hash().Hex(), ErrTxReverted)
	}
	return tx.Hash(), nil
}

// broadcast signs and sends one call. The pending nonce is read inside Transact, so two
// broadcasts on the same chain must not interleave.
func (e *Executor) broadcast(ctx context.Context, method, machineID string, fee *big.Int) (*types.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signer, err := e.transactor(ctx)
	if err != nil {
		return nil, err
	}
	opts := *signer
	opts.Context = ctx

	tx, err := e.contract.Transact(&opts, method, machineID, fee, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("%s(%s): %w", method, machineID, err)
	}
	return tx, nil
}

func (e *Executor) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
