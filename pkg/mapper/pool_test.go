package mapper

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

const machineHex = "64f0c0ffee0000000000abcd"

func rawMachine(id string, status uint8) chain.Machine {
	n := big.NewInt
	return chain.Machine{
		Id:                        id,
		Owner:                     common.HexToAddress("0xc0ffee"),
		BaseTokenAddress:          common.HexToAddress("0xba5e"),
		TargetTokenAddress:        common.HexToAddress("0x7a76e7"),
		AmmRouterAddress:          common.HexToAddress("0x4077e4"),
		AmmRouterVersion:          1,
		BatchVolume:               n(1_000_000),
		Frequency:                 n(3600),
		StartAt:                   n(1_700_000_000),
		NextScheduledExecutionAt:  n(1_700_003_600),
		OpeningPositionCondition:  chain.ValueComparison{Operator: 3, Value0: n(2), Value1: n(0)},
		StopLossCondition:         chain.TradingStop{StopType: 1, Value: n(7)},
		TakeProfitCondition:       chain.TradingStop{StopType: 0, Value: n(0)},
		Status:                    status,
		ExecutedBatchAmount:       n(4),
		TotalDepositedBaseAmount:  n(10_000_000),
		TotalSwappedBaseAmount:    n(4_000_000),
		TotalReceivedTargetAmount: n(2_000_000),
		BaseTokenBalance:          n(6_000_000),
		TargetTokenBalance:        n(2_000_000),
	}
}

func TestAggregatePool(t *testing.T) {
	now := time.Unix(1_700_010_000, 0)

	t.Run("empty id is not found", func(t *testing.T) {
		assert.Nil(t, AggregatePool("bnb", chain.MachineState{Machine: rawMachine("", 1)}, now))
	})

	t.Run("maps every field", func(t *testing.T) {
		s := AggregatePool("bnb", chain.MachineState{
			Machine:        rawMachine(machineHex, 2),
			StopConditions: []chain.StopCondition{{Operator: 1, Value: big.NewInt(10)}},
		}, now)
		require.NotNil(t, s)
		assert.Equal(t, machineHex, s.ID.Hex())
		assert.Equal(t, machineHex, s.Address)
		assert.Equal(t, entity.ChainID("bnb"), s.ChainID)
		assert.Equal(t, common.HexToAddress("0xc0ffee").Hex(), s.OwnerAddress)
		assert.Equal(t, entity.PoolStatusPaused, s.Status)
		assert.Equal(t, entity.AMMRouterV2, s.AMMRouterVersion)
		assert.Equal(t, 1_000_000.0, s.BatchVolume)
		assert.Equal(t, 3600.0, s.Frequency.Seconds)
		assert.Equal(t, 4.0, s.CurrentBatchAmount)
		assert.Equal(t, 4_000_000.0, s.CurrentSpentBaseToken)
		assert.Equal(t, 2_000_000.0, s.CurrentReceivedTargetToken)
		assert.Equal(t, 6_000_000.0, s.RemainingBaseTokenBalance)
		assert.Equal(t, 10_000_000.0, s.DepositedAmount)
		assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), s.StartTime)
		assert.Equal(t, time.Unix(1_700_003_600, 0).UTC(), s.NextExecutionAt)
		require.NotNil(t, s.BuyCondition)
		assert.Equal(t, entity.PriceConditionLT, s.BuyCondition.Type)
		require.NotNil(t, s.StopLossCondition)
		assert.Equal(t, entity.TradingStopPrice, s.StopLossCondition.StopType)
		assert.Nil(t, s.TakeProfitCondition)
		assert.Equal(t, 10.0, *s.StopConditions.BatchAmountReach)
	})

	t.Run("active past end time is closed", func(t *testing.T) {
		state := chain.MachineState{
			Machine:        rawMachine(machineHex, 1),
			StopConditions: []chain.StopCondition{{Operator: 0, Value: big.NewInt(1_700_005_000)}},
		}
		assert.Equal(t, entity.PoolStatusClosed, AggregatePool("bnb", state, now).Status)

		state.StopConditions[0].Value = big.NewInt(1_700_020_000)
		assert.Equal(t, entity.PoolStatusActive, AggregatePool("bnb", state, now).Status)
	})

	t.Run("paused past end time keeps its status", func(t *testing.T) {
		state := chain.MachineState{
			Machine:        rawMachine(machineHex, 2),
			StopConditions: []chain.StopCondition{{Operator: 0, Value: big.NewInt(1_700_005_000)}},
		}
		assert.Equal(t, entity.PoolStatusPaused, AggregatePool("bnb", state, now).Status)
	})
}

func TestAggregatePools_KeepsPositions(t *testing.T) {
	got := AggregatePools("bnb", []chain.MachineState{
		{Machine: rawMachine(machineHex, 1)},
		{Machine: rawMachine("", 1)},
		{Machine: rawMachine("64f0c0ffee0000000000abce", 1)},
	}, time.Now())
	require.Len(t, got, 3)
	assert.NotNil(t, got[0])
	assert.Nil(t, got[1])
	assert.NotNil(t, got[2])
}
