// Package mapper translates raw machine program state into pool and activity documents.
// Every function is pure: callers supply the clock and the token metadata.
package mapper

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// MapStatus maps the on-chain status code. Unknown codes are ACTIVE.
func MapStatus(code uint8) entity.PoolStatus {
	switch code {
	case 1:
		return entity.PoolStatusActive
	case 2:
		return entity.PoolStatusPaused
	case 3:
		return entity.PoolStatusClosed
	case 4:
		return entity.PoolStatusEnded
	default:
		return entity.PoolStatusActive
	}
}

var comparators = map[uint8]entity.PriceConditionType{
	1: entity.PriceConditionGT,
	2: entity.PriceConditionGTE,
	3: entity.PriceConditionLT,
	4: entity.PriceConditionLTE,
	5: entity.PriceConditionBW,
	6: entity.PriceConditionNBW,
}

// MapBuyCondition returns nil for operator 0 and for any unknown operator.
func MapBuyCondition(c chain.ValueComparison) *entity.BuyCondition {
	t, ok := comparators[c.Operator]
	if !ok {
		return nil
	}
	return &entity.BuyCondition{
		Type:  t,
		Value: []float64{toFloat(c.Value0), toFloat(c.Value1)},
	}
}

// MapStopConditions folds the condition list into one document. Unknown kinds are dropped
// and a later entry of the same kind wins.
func MapStopConditions(conds []chain.StopCondition) *entity.StopConditions {
	out := &entity.StopConditions{}
	for _, c := range conds {
		switch c.Operator {
		case 0:
			t := unixTime(c.Value)
			out.EndTime = &t
		case 1:
			v := toFloat(c.Value)
			out.BatchAmountReach = &v
		case 2:
			v := toFloat(c.Value)
			out.SpentBaseTokenReach = &v
		case 3:
			v := toFloat(c.Value)
			out.ReceivedTargetTokenReach = &v
		}
	}
	return out
}

var tradingStops = map[uint8]entity.TradingStopType{
	1: entity.TradingStopPrice,
	2: entity.TradingStopPortfolioPercentageDiff,
	3: entity.TradingStopPortfolioValueDiff,
}

// MapTradingStop returns nil for kind 0 and unknown kinds.
func MapTradingStop(s chain.TradingStop) *entity.TradingStopCondition {
	t, ok := tradingStops[s.StopType]
	if !ok {
		return nil
	}
	return &entity.TradingStopCondition{StopType: t, Value: toFloat(s.Value)}
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, 0).InexactFloat64()
}

// scaled divides a raw token amount by 10^decimals.
func scaled(v *big.Int, decimals int32) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -decimals).InexactFloat64()
}

// unixTime converts on-chain seconds to a UTC time with millisecond precision.
func unixTime(v *big.Int) time.Time {
	if v == nil {
		return time.UnixMilli(0).UTC()
	}
	return time.UnixMilli(v.Int64() * 1000).UTC()
}
