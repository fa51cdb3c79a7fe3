package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the subset of the JSON-RPC API the reader uses. *ethclient.Client satisfies it.
type Client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Contracts are the program addresses of one chain.
type Contracts struct {
	Machine    common.Address
	Registry   common.Address
	Vault      common.Address
	Multicall3 common.Address
}
