package mapper

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/systemis/funding-machine-backend/pkg/chain"
	"github.com/systemis/funding-machine-backend/pkg/entity"
)

var memoTypes = map[string]entity.ActivityType{
	"USER_UPDATE_MACHINE":                            entity.ActivityUpdated,
	"OPERATOR_UPDATED_TRADING_STATS":                 entity.ActivityUpdated,
	"USER_DEPOSITED_FUND":                            entity.ActivityUpdated,
	"USER_WITHDREW_FUND":                             entity.ActivityUpdated,
	"USER_CLOSED_POSITION":                           entity.ActivityUpdated,
	"USER_PAUSED_MACHINE":                            entity.ActivityPaused,
	"USER_RESTARTED_MACHINE":                         entity.ActivityRestarted,
	"CLOSED_MACHINE_DUE_TO_POSITION_CLOSED":          entity.ActivityClosed,
	"OPERATOR_CLOSED_MACHINE_DUE_TO_STOP_CONDITIONS": entity.ActivityClosed,
	"USER_CLOSED_MACHINE":                            entity.ActivityClosed,
	"OPERATOR_TAKE_PROFIT":                           entity.ActivityTakeProfit,
	"OPERATOR_STOP_LOSS":                             entity.ActivityStopLoss,
}

// MemoType maps a MachineUpdated memo to an activity type.
func MemoType(memo string) (entity.ActivityType, bool) {
	t, ok := memoTypes[memo]
	return t, ok
}

// MapEvent turns one decoded log into a ledger entry. It returns nil for unrecognized
// events, unknown memos, malformed arguments, and amounts whose token is not whitelisted.
func MapEvent(chainID entity.ChainID, ev chain.Event, tokens TokenBook) *entity.PoolActivity {
	a := args(ev.Args)
	actor, ok1 := a.address(0)
	machineID, ok2 := a.str(1)
	if !ok1 || !ok2 {
		return nil
	}
	poolID, err := primitive.ObjectIDFromHex(machineID)
	if err != nil {
		return nil
	}

	act := &entity.PoolActivity{
		EventHash:     ev.Hash(),
		PoolID:        poolID,
		ChainID:       chainID,
		Status:        entity.ActivityStatusSuccessful,
		Actor:         actor.Hex(),
		TransactionID: ev.TxHash.Hex(),
	}

	var tsIndex int
	switch ev.Kind {
	case chain.EventMachineUpdated:
		memo, ok := a.str(3)
		if !ok {
			return nil
		}
		t, ok := MemoType(memo)
		if !ok {
			return nil
		}
		act.Type, act.Memo, tsIndex = t, memo, 5
	case chain.EventMachineInitialized:
		act.Type, tsIndex = entity.ActivityCreated, 4
	case chain.EventDeposited:
		amount, ok := a.tokenAmount(2, 3, tokens)
		if !ok {
			return nil
		}
		act.Type, act.BaseTokenAmount, tsIndex = entity.ActivityDeposited, &amount, 4
	case chain.EventWithdrawn, chain.EventSwapped, chain.EventClosedPosition:
		base, okBase := a.tokenAmount(2, 3, tokens)
		target, okTarget := a.tokenAmount(4, 5, tokens)
		if !okBase || !okTarget {
			return nil
		}
		act.BaseTokenAmount, act.TargetTokenAmount, tsIndex = &base, &target, 6
		switch ev.Kind {
		case chain.EventWithdrawn:
			act.Type = entity.ActivityWithdrawn
		case chain.EventSwapped:
			act.Type = entity.ActivitySwapped
		default:
			act.Type = entity.ActivityClosedPosition
		}
	default:
		return nil
	}

	ts, ok := a.bigInt(tsIndex)
	if !ok {
		return nil
	}
	act.CreatedAt = unixTime(ts)
	return act
}

// MapEvents maps a batch, dropping entries MapEvent rejects.
func MapEvents(chainID entity.ChainID, events []chain.Event, tokens TokenBook) []entity.PoolActivity {
	out := make([]entity.PoolActivity, 0, len(events))
	for _, ev := range events {
		if act := MapEvent(chainID, ev, tokens); act != nil {
			out = append(out, *act)
		}
	}
	return out
}

// LifecycleDates collects the closedAt, endedAt and closedPositionAt stamps implied by a
// batch. The last matching activity of a pool wins. Pools with no such activity are absent.
func LifecycleDates(activities []entity.PoolActivity) map[primitive.ObjectID]entity.PoolDates {
	out := map[primitive.ObjectID]entity.PoolDates{}
	for _, act := range activities {
		d := out[act.PoolID]
		at := act.CreatedAt
		switch act.Type {
		case entity.ActivityClosed:
			d.ClosedAt = &at
		case entity.ActivityWithdrawn:
			d.EndedAt = &at
		case entity.ActivityClosedPosition:
			d.ClosedPositionAt = &at
		default:
			continue
		}
		out[act.PoolID] = d
	}
	return out
}

// args reads positional event inputs with type checks.
type args []interface{}

func (a args) at(i int) (interface{}, bool) {
	if i < 0 || i >= len(a) {
		return nil, false
	}
	return a[i], true
}

func (a args) address(i int) (common.Address, bool) {
	v, ok := a.at(i)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

func (a args) str(i int) (string, bool) {
	v, ok := a.at(i)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (a args) bigInt(i int) (*big.Int, bool) {
	v, ok := a.at(i)
	if !ok {
		return nil, false
	}
	n, ok := v.(*big.Int)
	return n, ok && n != nil
}

func (a args) tokenAmount(tokenIdx, amountIdx int, tokens TokenBook) (float64, bool) {
	token, ok := a.address(tokenIdx)
	if !ok {
		return 0, false
	}
	amount, ok := a.bigInt(amountIdx)
	if !ok {
		return 0, false
	}
	meta, ok := tokens.Lookup(token.Hex())
	if !ok {
		return 0, false
	}
	return scaled(amount, meta.Decimals), true
}
