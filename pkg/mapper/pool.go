package mapper

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

var routerVersions = []entity.AMMRouterVersion{entity.AMMRouterV3, entity.AMMRouterV2}

// AggregatePool builds the chain-derived projection of one machine. It returns nil when the
// registry has no record for the id (an empty or malformed on-chain id); callers treat that
// as "not found".
func AggregatePool(chainID entity.ChainID, state chain.MachineState, now time.Time) *entity.PoolSnapshot {
	m := state.Machine
	if m.Id == "" {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(m.Id)
	if err != nil {
		return nil
	}

	s := &entity.PoolSnapshot{
		ID:                                     id,
		ChainID:                                chainID,
		Address:                                m.Id,
		OwnerAddress:                           addressHex(m.Owner),
		BaseTokenAddress:                       addressHex(m.BaseTokenAddress),
		TargetTokenAddress:                     addressHex(m.TargetTokenAddress),
		AMMRouterAddress:                       addressHex(m.AmmRouterAddress),
		BatchVolume:                            toFloat(m.BatchVolume),
		Frequency:                              entity.Frequency{Seconds: toFloat(m.Frequency)},
		BuyCondition:                           MapBuyCondition(m.OpeningPositionCondition),
		StopConditions:                         MapStopConditions(state.StopConditions),
		StopLossCondition:                      MapTradingStop(m.StopLossCondition),
		TakeProfitCondition:                    MapTradingStop(m.TakeProfitCondition),
		Status:                                 MapStatus(m.Status),
		CurrentBatchAmount:                     toFloat(m.ExecutedBatchAmount),
		CurrentReceivedTargetToken:             toFloat(m.TotalReceivedTargetAmount),
		CurrentSpentBaseToken:                  toFloat(m.TotalSwappedBaseAmount),
		CurrentTargetTokenBalance:              toFloat(m.TargetTokenBalance),
		DepositedAmount:                        toFloat(m.TotalDepositedBaseAmount),
		RemainingBaseTokenBalance:              toFloat(m.BaseTokenBalance),
		TotalClosedPositionInTargetTokenAmount: toFloat(m.TotalClosedPositionInTargetTokenAmount),
		TotalReceivedFundInBaseTokenAmount:     toFloat(m.TotalReceivedFundInBaseTokenAmount),
		NextExecutionAt:                        unixTime(m.NextScheduledExecutionAt),
		StartTime:                              unixTime(m.StartAt),
	}
	if int(m.AmmRouterVersion) < len(routerVersions) {
		s.AMMRouterVersion = routerVersions[m.AmmRouterVersion]
	}

	// ACTIVE past its end time is shown as CLOSED until the operator closes it on-chain.
	if s.Status == entity.PoolStatusActive && s.StopConditions.EndTime != nil && !s.StopConditions.EndTime.After(now) {
		s.Status = entity.PoolStatusClosed
	}
	return s
}

// AggregatePools maps a batch in order, keeping nil for uninitialized machines.
func AggregatePools(chainID entity.ChainID, states []chain.MachineState, now time.Time) []*entity.PoolSnapshot {
	out := make([]*entity.PoolSnapshot, len(states))
	for i, st := range states {
		out[i] = AggregatePool(chainID, st, now)
	}
	return out
}

func addressHex(a common.Address) string {
	return a.Hex()
}
