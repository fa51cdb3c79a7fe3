package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ValueComparison is the opening-position price gate of a machine.
type ValueComparison struct {
	Operator uint8
	Value0   *big.Int
	Value1   *big.Int
}

// TradingStop is a stop-loss or take-profit rule.
type TradingStop struct {
	StopType uint8
	Value    *big.Int
}

// StopCondition is one entry of getStopConditionsOf.
type StopCondition struct {
	Operator uint8
	Value    *big.Int
}

// Machine mirrors the registry's machine struct. Field names follow the ABI component names.
type Machine struct {
	Id                                     string
	Owner                                  common.Address
	BaseTokenAddress                       common.Address
	TargetTokenAddress                     common.Address
	AmmRouterAddress                       common.Address
	AmmRouterVersion                       uint8
	BatchVolume                            *big.Int
	Frequency                              *big.Int
	StartAt                                *big.Int
	NextScheduledExecutionAt               *big.Int
	OpeningPositionCondition               ValueComparison
	StopLossCondition                      TradingStop
	TakeProfitCondition                    TradingStop
	Status                                 uint8
	ExecutedBatchAmount                    *big.Int
	TotalDepositedBaseAmount               *big.Int
	TotalSwappedBaseAmount                 *big.Int
	TotalReceivedTargetAmount              *big.Int
	TotalClosedPositionInTargetTokenAmount *big.Int
	TotalReceivedFundInBaseTokenAmount     *big.Int
	BaseTokenBalance                       *big.Int
	TargetTokenBalance                     *big.Int
}

// MachineState is a machine plus its stop conditions, read in the same round trip.
type MachineState struct {
	Machine        Machine
	StopConditions []StopCondition
}

// QuoteRequest asks the vault to simulate swapping Amount of Base into Target.
type QuoteRequest struct {
	Base   common.Address
	Target common.Address
	Router common.Address
	Amount *big.Int
	Fee    *big.Int
}

// Quote is a simulated swap result.
type Quote struct {
	AmountIn  *big.Int
	AmountOut *big.Int
}

// EventKind enumerates the program events the ingestion understands.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventMachineUpdated
	EventMachineInitialized
	EventDeposited
	EventWithdrawn
	EventSwapped
	EventClosedPosition
)

var eventKindNames = map[string]EventKind{
	"MachineUpdated":     EventMachineUpdated,
	"MachineInitialized": EventMachineInitialized,
	"Deposited":          EventDeposited,
	"Withdrawn":          EventWithdrawn,
	"Swapped":            EventSwapped,
	"ClosedPosition":     EventClosedPosition,
}

// ParseEventKind maps an ABI event name to its kind.
func ParseEventKind(name string) EventKind {
	if k, ok := eventKindNames[name]; ok {
		return k
	}
	return EventUnrecognized
}

func (k EventKind) String() string {
	for name, kind := range eventKindNames {
		if kind == k {
			return name
		}
	}
	return "Unrecognized"
}

// Event is a decoded program log. Args are the event inputs in declaration order.
type Event struct {
	Kind        EventKind
	Name        string
	Args        []interface{}
	Address     common.Address
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint
}

// Hash is the idempotency key of the event.
func (e Event) Hash() string {
	return eventHash(e.BlockHash, e.TxHash, e.TxIndex, e.LogIndex, e.Name)
}

// EventBatch is the result of one ingestion window. SyncedBlock is the last block scanned.
type EventBatch struct {
	Events      []Event
	FromBlock   uint64
	SyncedBlock uint64
}
