package mapper

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// TokenBook looks up whitelist metadata by address, ignoring case.
type TokenBook map[string]entity.Whitelist

// NewTokenBook indexes a whitelist by address.
func NewTokenBook(tokens []entity.Whitelist) TokenBook {
	b := make(TokenBook, len(tokens))
	for _, t := range tokens {
		b[strings.ToLower(t.Address)] = t
	}
	return b
}

// Lookup returns the token with the given address.
func (b TokenBook) Lookup(address string) (entity.Whitelist, bool) {
	t, ok := b[strings.ToLower(address)]
	return t, ok
}

var hundred = decimal.NewFromInt(100)

// ComputeROI prices the position of a pool given what closing it now would return in raw
// base token units. Missing token metadata nulls every output, a zero divisor nulls the
// affected ratio, and ENDED pools carry no unrealized return.
func ComputeROI(pool *entity.Pool, positionValue *big.Int, tokens TokenBook) entity.Metrics {
	base, okBase := tokens.Lookup(pool.BaseTokenAddress)
	target, okTarget := tokens.Lookup(pool.TargetTokenAddress)
	if !okBase || !okTarget {
		return entity.Metrics{}
	}

	if positionValue == nil {
		positionValue = new(big.Int)
	}
	spent := decimal.NewFromFloat(pool.CurrentSpentBaseToken)
	received := decimal.NewFromFloat(pool.CurrentReceivedTargetToken)
	fund := decimal.NewFromFloat(pool.TotalReceivedFundInBaseTokenAmount)
	value := decimal.NewFromBigInt(positionValue, 0)
	baseUnit := decimal.New(1, base.Decimals)
	targetUnit := decimal.New(1, target.Decimals)

	var m entity.Metrics
	if !received.IsZero() {
		m.AvgPrice = ptr(spent.Div(baseUnit).Div(received.Div(targetUnit)).InexactFloat64())
	}
	if !spent.IsZero() {
		m.CurrentROI = ptr(value.Sub(spent).Mul(hundred).Div(spent).InexactFloat64())
		m.RealizedROI = ptr(fund.Sub(spent).Mul(hundred).Div(spent).InexactFloat64())
	}
	m.CurrentROIValue = ptr(value.Sub(spent).Div(baseUnit).InexactFloat64())
	m.RealizedROIValue = ptr(fund.Sub(spent).Div(baseUnit).InexactFloat64())

	if pool.Status == entity.PoolStatusEnded {
		m.CurrentROI = ptr(0)
		m.CurrentROIValue = ptr(0)
	}
	return m
}

// ClosingAmount is the raw target amount a closing quote is simulated for.
func ClosingAmount(pool *entity.Pool) *big.Int {
	return rawAmount(pool.CurrentReceivedTargetToken)
}

// SpentAmount is the raw base amount spent so far, the fallback position value when a
// closing quote cannot be simulated.
func SpentAmount(pool *entity.Pool) *big.Int {
	return rawAmount(pool.CurrentSpentBaseToken)
}

func rawAmount(v float64) *big.Int {
	if v <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromFloat(v).Truncate(0).BigInt()
}

func ptr(v float64) *float64 {
	return &v
}
