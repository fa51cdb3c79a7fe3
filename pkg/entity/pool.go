package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PoolStatus string

const (
	PoolStatusCreated PoolStatus = "POOL_STATUS::CREATED"
	PoolStatusActive  PoolStatus = "POOL_STATUS::ACTIVE"
	PoolStatusPaused  PoolStatus = "POOL_STATUS::PAUSED"
	PoolStatusClosed  PoolStatus = "POOL_STATUS::CLOSED"
	PoolStatusEnded   PoolStatus = "POOL_STATUS::ENDED"
)

// SyncableStatuses are the statuses the fleet-wide sync keeps refreshing.
var SyncableStatuses = []PoolStatus{PoolStatusCreated, PoolStatusActive, PoolStatusPaused, PoolStatusClosed}

type PriceConditionType string

const (
	PriceConditionGT  PriceConditionType = "GT"
	PriceConditionGTE PriceConditionType = "GTE"
	PriceConditionLT  PriceConditionType = "LT"
	PriceConditionLTE PriceConditionType = "LTE"
	PriceConditionBW  PriceConditionType = "BW"
	PriceConditionNBW PriceConditionType = "NBW"
)

type TradingStopType string

const (
	TradingStopPrice                   TradingStopType = "TRADING_STOP::PRICE"
	TradingStopPortfolioPercentageDiff TradingStopType = "TRADING_STOP::PORTFOLIO_PERCENTAGE_DIFF"
	TradingStopPortfolioValueDiff      TradingStopType = "TRADING_STOP::PORTFOLIO_VALUE_DIFF"
)

type MainProgressBy string

const (
	ProgressByEndTime             MainProgressBy = "END_TIME"
	ProgressBySpentBaseToken      MainProgressBy = "SPENT_BASE_TOKEN"
	ProgressByReceivedTargetToken MainProgressBy = "RECEIVED_TARGET_TOKEN"
	ProgressByBatchAmount         MainProgressBy = "BATCH_AMOUNT"
)

type AMMRouterVersion string

const (
	AMMRouterV3 AMMRouterVersion = "V3"
	AMMRouterV2 AMMRouterVersion = "V2"
)

// BuyCondition gates each batch on the current price. Value holds [low, high]; single-bound
// comparators only read the first element.
type BuyCondition struct {
	Type  PriceConditionType `bson:"type" json:"type"`
	Value []float64          `bson:"value" json:"value"`
}

// StopConditions end active trading once any of the set thresholds is reached.
type StopConditions struct {
	EndTime                  *time.Time `bson:"endTime,omitempty" json:"endTime,omitempty"`
	BatchAmountReach         *float64   `bson:"batchAmountReach,omitempty" json:"batchAmountReach,omitempty"`
	SpentBaseTokenReach      *float64   `bson:"spentBaseTokenReach,omitempty" json:"spentBaseTokenReach,omitempty"`
	ReceivedTargetTokenReach *float64   `bson:"receivedTargetTokenReach,omitempty" json:"receivedTargetTokenReach,omitempty"`
}

type TradingStopCondition struct {
	StopType TradingStopType `bson:"stopType" json:"stopType"`
	Value    float64         `bson:"value" json:"value"`
}

type Frequency struct {
	Seconds float64 `bson:"seconds" json:"seconds"`
}

// Pool is one recurring-buy position. Amounts are raw token units as reported on-chain.
type Pool struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	ChainID      ChainID            `bson:"chainId" json:"chainId"`
	OwnerAddress string             `bson:"ownerAddress" json:"ownerAddress"`
	Address      string             `bson:"address,omitempty" json:"address,omitempty"`

	BaseTokenAddress    string                `bson:"baseTokenAddress" json:"baseTokenAddress"`
	TargetTokenAddress  string                `bson:"targetTokenAddress" json:"targetTokenAddress"`
	AMMRouterAddress    string                `bson:"ammRouterAddress" json:"ammRouterAddress"`
	AMMRouterVersion    AMMRouterVersion      `bson:"ammRouterVersion,omitempty" json:"ammRouterVersion,omitempty"`
	BatchVolume         float64               `bson:"batchVolume" json:"batchVolume"`
	Frequency           Frequency             `bson:"frequency" json:"frequency"`
	BuyCondition        *BuyCondition         `bson:"buyCondition,omitempty" json:"buyCondition,omitempty"`
	StopConditions      *StopConditions       `bson:"stopConditions,omitempty" json:"stopConditions,omitempty"`
	StopLossCondition   *TradingStopCondition `bson:"stopLossCondition,omitempty" json:"stopLossCondition,omitempty"`
	TakeProfitCondition *TradingStopCondition `bson:"takeProfitCondition,omitempty" json:"takeProfitCondition,omitempty"`

	Status                                 PoolStatus     `bson:"status" json:"status"`
	CurrentSpentBaseToken                  float64        `bson:"currentSpentBaseToken" json:"currentSpentBaseToken"`
	CurrentReceivedTargetToken             float64        `bson:"currentReceivedTargetToken" json:"currentReceivedTargetToken"`
	RemainingBaseTokenBalance              float64        `bson:"remainingBaseTokenBalance" json:"remainingBaseTokenBalance"`
	CurrentTargetTokenBalance              float64        `bson:"currentTargetTokenBalance" json:"currentTargetTokenBalance"`
	CurrentBatchAmount                     float64        `bson:"currentBatchAmount" json:"currentBatchAmount"`
	DepositedAmount                        float64        `bson:"depositedAmount" json:"depositedAmount"`
	TotalClosedPositionInTargetTokenAmount float64        `bson:"totalClosedPositionInTargetTokenAmount" json:"totalClosedPositionInTargetTokenAmount"`
	TotalReceivedFundInBaseTokenAmount     float64        `bson:"totalReceivedFundInBaseTokenAmount" json:"totalReceivedFundInBaseTokenAmount"`
	MainProgressBy                         MainProgressBy `bson:"mainProgressBy,omitempty" json:"mainProgressBy,omitempty"`
	ProgressPercent                        float64        `bson:"progressPercent" json:"progressPercent"`

	AvgPrice         *float64 `bson:"avgPrice" json:"avgPrice"`
	CurrentROI       *float64 `bson:"currentROI" json:"currentROI"`
	CurrentROIValue  *float64 `bson:"currentROIValue" json:"currentROIValue"`
	RealizedROI      *float64 `bson:"realizedROI" json:"realizedROI"`
	RealizedROIValue *float64 `bson:"realizedROIValue" json:"realizedROIValue"`

	NextExecutionAt  *time.Time `bson:"nextExecutionAt,omitempty" json:"nextExecutionAt,omitempty"`
	StartTime        *time.Time `bson:"startTime,omitempty" json:"startTime,omitempty"`
	EndedAt          *time.Time `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	ClosedAt         *time.Time `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
	ClosedPositionAt *time.Time `bson:"closedPositionAt,omitempty" json:"closedPositionAt,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// MachineID is the identifier the machine programs know the pool by.
func (p *Pool) MachineID() string {
	return p.ID.Hex()
}
