package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PoolSnapshot is the chain-derived projection of a pool. It is written with $set so only
// these fields are overwritten; absent optional conditions leave the stored value alone.
type PoolSnapshot struct {
	ID           primitive.ObjectID `bson:"-"`
	ChainID      ChainID            `bson:"chainId"`
	Address      string             `bson:"address"`
	OwnerAddress string             `bson:"ownerAddress"`

	BaseTokenAddress    string                `bson:"baseTokenAddress"`
	TargetTokenAddress  string                `bson:"targetTokenAddress"`
	AMMRouterAddress    string                `bson:"ammRouterAddress"`
	AMMRouterVersion    AMMRouterVersion      `bson:"ammRouterVersion,omitempty"`
	BatchVolume         float64               `bson:"batchVolume"`
	Frequency           Frequency             `bson:"frequency"`
	BuyCondition        *BuyCondition         `bson:"buyCondition,omitempty"`
	StopConditions      *StopConditions       `bson:"stopConditions,omitempty"`
	StopLossCondition   *TradingStopCondition `bson:"stopLossCondition,omitempty"`
	TakeProfitCondition *TradingStopCondition `bson:"takeProfitCondition,omitempty"`

	Status                                 PoolStatus `bson:"status"`
	CurrentSpentBaseToken                  float64    `bson:"currentSpentBaseToken"`
	CurrentReceivedTargetToken             float64    `bson:"currentReceivedTargetToken"`
	RemainingBaseTokenBalance              float64    `bson:"remainingBaseTokenBalance"`
	CurrentTargetTokenBalance              float64    `bson:"currentTargetTokenBalance"`
	CurrentBatchAmount                     float64    `bson:"currentBatchAmount"`
	DepositedAmount                        float64    `bson:"depositedAmount"`
	TotalClosedPositionInTargetTokenAmount float64    `bson:"totalClosedPositionInTargetTokenAmount"`
	TotalReceivedFundInBaseTokenAmount     float64    `bson:"totalReceivedFundInBaseTokenAmount"`

	NextExecutionAt time.Time `bson:"nextExecutionAt"`
	StartTime       time.Time `bson:"startTime"`
}

// Metrics are the derived pricing figures merged onto a pool after a sync. Nil values are
// written as null.
type Metrics struct {
	AvgPrice         *float64 `bson:"avgPrice"`
	CurrentROI       *float64 `bson:"currentROI"`
	CurrentROIValue  *float64 `bson:"currentROIValue"`
	RealizedROI      *float64 `bson:"realizedROI"`
	RealizedROIValue *float64 `bson:"realizedROIValue"`
	ProgressPercent  *float64 `bson:"progressPercent,omitempty"`
}

// Apply overlays the snapshot onto a stored pool, the in-memory equivalent of the $set write.
func (s *PoolSnapshot) Apply(p *Pool) {
	p.ID = s.ID
	p.ChainID = s.ChainID
	p.Address = s.Address
	p.OwnerAddress = s.OwnerAddress
	p.BaseTokenAddress = s.BaseTokenAddress
	p.TargetTokenAddress = s.TargetTokenAddress
	p.AMMRouterAddress = s.AMMRouterAddress
	if s.AMMRouterVersion != "" {
		p.AMMRouterVersion = s.AMMRouterVersion
	}
	p.BatchVolume = s.BatchVolume
	p.Frequency = s.Frequency
	if s.BuyCondition != nil {
		p.BuyCondition = s.BuyCondition
	}
	if s.StopConditions != nil {
		p.StopConditions = s.StopConditions
	}
	if s.StopLossCondition != nil {
		p.StopLossCondition = s.StopLossCondition
	}
	if s.TakeProfitCondition != nil {
		p.TakeProfitCondition = s.TakeProfitCondition
	}
	p.Status = s.Status
	p.CurrentSpentBaseToken = s.CurrentSpentBaseToken
	p.CurrentReceivedTargetToken = s.CurrentReceivedTargetToken
	p.RemainingBaseTokenBalance = s.RemainingBaseTokenBalance
	p.CurrentTargetTokenBalance = s.CurrentTargetTokenBalance
	p.CurrentBatchAmount = s.CurrentBatchAmount
	p.DepositedAmount = s.DepositedAmount
	p.TotalClosedPositionInTargetTokenAmount = s.TotalClosedPositionInTargetTokenAmount
	p.TotalReceivedFundInBaseTokenAmount = s.TotalReceivedFundInBaseTokenAmount
	next, start := s.NextExecutionAt, s.StartTime
	p.NextExecutionAt = &next
	p.StartTime = &start
}

// Apply overlays the metrics onto a stored pool.
func (m *Metrics) Apply(p *Pool) {
	p.AvgPrice = m.AvgPrice
	p.CurrentROI = m.CurrentROI
	p.CurrentROIValue = m.CurrentROIValue
	p.RealizedROI = m.RealizedROI
	p.RealizedROIValue = m.RealizedROIValue
	if m.ProgressPercent != nil {
		p.ProgressPercent = *m.ProgressPercent
	}
}
