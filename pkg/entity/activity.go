package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityType string

const (
	ActivityCreated              ActivityType = "ACTIVITY_TYPE::CREATED"
	ActivityPaused               ActivityType = "ACTIVITY_TYPE::PAUSED"
	ActivityContinue             ActivityType = "ACTIVITY_TYPE::CONTINUE"
	ActivityClosed               ActivityType = "ACTIVITY_TYPE::CLOSED"
	ActivityDeposited            ActivityType = "ACTIVITY_TYPE::DEPOSITED"
	ActivityWithdrawn            ActivityType = "ACTIVITY_TYPE::WITHDRAWN"
	ActivitySwapped              ActivityType = "ACTIVITY_TYPE::SWAPPED"
	ActivityUpdated              ActivityType = "ACTIVITY_TYPE::UPDATED"
	ActivityRestarted            ActivityType = "ACTIVITY_TYPE::RESTARTED"
	ActivityClosedPosition       ActivityType = "ACTIVITY_TYPE::CLOSED_POSITION"
	ActivityStopLoss             ActivityType = "ACTIVITY_TYPE::STOP_LOSS"
	ActivityTakeProfit           ActivityType = "ACTIVITY_TYPE::TAKE_PROFIT"
	ActivitySkipped              ActivityType = "ACTIVITY_TYPE::SKIPPED"
	ActivityVaultCreated         ActivityType = "ACTIVITY_TYPE::VAULT_CREATED"
	ActivityMachineConfigUpdated ActivityType = "ACTIVITY_TYPE::MACHINE_CONFIG_UPDATED"
)

type ActivityStatus string

const (
	ActivityStatusSuccessful ActivityStatus = "SUCCESSFUL"
	ActivityStatusFailed     ActivityStatus = "FAILED"
)

// PoolActivity is an immutable ledger entry for one on-chain event. EventHash is the
// idempotency key.
type PoolActivity struct {
	EventHash         string             `bson:"eventHash" json:"eventHash"`
	PoolID            primitive.ObjectID `bson:"poolId" json:"poolId"`
	ChainID           ChainID            `bson:"chainId" json:"chainId"`
	Type              ActivityType       `bson:"type" json:"type"`
	Status            ActivityStatus     `bson:"status" json:"status"`
	Actor             string             `bson:"actor" json:"actor"`
	BaseTokenAmount   *float64           `bson:"baseTokenAmount" json:"baseTokenAmount"`
	TargetTokenAmount *float64           `bson:"targetTokenAmount" json:"targetTokenAmount"`
	TransactionID     string             `bson:"transactionId" json:"transactionId"`
	Memo              string             `bson:"memo" json:"memo"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
}

// PoolDates are the lifecycle timestamps derived from a batch of activities.
type PoolDates struct {
	ClosedAt         *time.Time `bson:"closedAt,omitempty"`
	EndedAt          *time.Time `bson:"endedAt,omitempty"`
	ClosedPositionAt *time.Time `bson:"closedPositionAt,omitempty"`
}

// Empty reports whether no date is set.
func (d PoolDates) Empty() bool {
	return d.ClosedAt == nil && d.EndedAt == nil && d.ClosedPositionAt == nil
}
