package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Call3 is one entry of a Multicall3 aggregate3 batch.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the outcome of one Call3.
type Result struct {
	Success    bool
	ReturnData []byte
}

// Aggregate runs calls in a single eth_call through Multicall3. A call with AllowFailure
// unset that reverts fails the whole batch.
func (r *Reader) Aggregate(ctx context.Context, calls []Call3) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := Multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	var raw []byte
	err = r.do(ctx, "aggregate3", func(ctx context.Context) error {
		var callErr error
		raw, callErr = r.client.CallContract(ctx, ethereum.CallMsg{To: &r.contracts.Multicall3, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	out, err := Multicall3ABI.Unpack("aggregate3", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	results, err := convert[[]Result](out[0])
	if err != nil {
		return nil, err
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}

// convert copies an ABI-decoded value into T. abi.ConvertType panics on shape mismatch.
func convert[T any](v interface{}) (out T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("abi convert to %T: %v", out, rec)
		}
	}()
	out = *abi.ConvertType(v, new(T)).(*T)
	return out, nil
}
