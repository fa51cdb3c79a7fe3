package mapper

import (
	"time"

	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// ProgressPercent is -1 when the pool has no stop conditions, otherwise the ratio of the
// field selected by MainProgressBy to its threshold. It returns nil when the selected
// threshold is unset or zero, leaving the stored value untouched.
func ProgressPercent(pool *entity.Pool, now time.Time) *float64 {
	sc := pool.StopConditions
	if sc == nil {
		return ptr(-1)
	}

	switch pool.MainProgressBy {
	case entity.ProgressByEndTime:
		if sc.EndTime == nil || pool.StartTime == nil {
			return nil
		}
		start, end := *pool.StartTime, *sc.EndTime
		total := end.Sub(start)
		if total <= 0 {
			return nil
		}
		elapsed := now.Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		return ptr(float64(elapsed) / float64(total))
	case entity.ProgressBySpentBaseToken:
		return ratio(pool.CurrentSpentBaseToken, sc.SpentBaseTokenReach)
	case entity.ProgressByReceivedTargetToken:
		return ratio(pool.CurrentReceivedTargetToken, sc.ReceivedTargetTokenReach)
	case entity.ProgressByBatchAmount:
		return ratio(pool.CurrentBatchAmount, sc.BatchAmountReach)
	default:
		return nil
	}
}

func ratio(current float64, threshold *float64) *float64 {
	if threshold == nil || *threshold == 0 {
		return nil
	}
	return ptr(current / *threshold)
}
