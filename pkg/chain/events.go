package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func eventHash(blockHash, txHash common.Hash, txIndex, logIndex uint, name string) string {
	return fmt.Sprintf("%s-%s-%d-%d-%s", blockHash.Hex(), txHash.Hex(), txIndex, logIndex, name)
}

// decodeLog parses lg against the contract ABI. Logs that are not on the allow-list or
// fail to decode are reported as not ok.
func decodeLog(contract abi.ABI, lg types.Log) (Event, bool) {
	if lg.Removed || len(lg.Topics) == 0 {
		return Event{}, false
	}
	ev, err := contract.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, false
	}
	kind := ParseEventKind(ev.Name)
	if kind == EventUnrecognized {
		return Event{}, false
	}
	args, err := ev.Inputs.Unpack(lg.Data)
	if err != nil {
		return Event{}, false
	}
	return Event{
		Kind:        kind,
		Name:        ev.Name,
		Args:        args,
		Address:     lg.Address,
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash,
		TxHash:      lg.TxHash,
		TxIndex:     lg.TxIndex,
		LogIndex:    lg.Index,
	}, true
}
