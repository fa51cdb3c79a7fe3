package poolsync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// Owners lists the owners whose portfolios are refreshed on a schedule.
func (s *Syncer) Owners(ctx context.Context) ([]string, error) {
	return s.Store.DistinctOwners(ctx, s.Policy.Excluded())
}

// SyncUserPortfolio recomputes what the owner holds of each whitelisted token across all
// pools: unspent base balances plus accumulated target balances. Tokens the owner has no
// pool in are skipped.
func (s *Syncer) SyncUserPortfolio(ctx context.Context, owner string) error {
	wl, err := s.Store.ListWhitelist(ctx)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}
	base, target, err := s.Store.OwnerTokenTotals(ctx, owner)
	if err != nil {
		return fmt.Errorf("token totals of %s: %w", owner, err)
	}
	base, target = lowerKeys(base), lowerKeys(target)

	tokens := make([]entity.UserToken, 0, len(wl))
	for _, t := range wl {
		key := strings.ToLower(t.Address)
		b, okBase := base[key]
		tg, okTarget := target[key]
		if !okBase && !okTarget {
			continue
		}
		tokens = append(tokens, entity.UserToken{
			OwnerAddress: owner,
			TokenAddress: t.Address,
			Total:        b + tg,
		})
	}
	if err := s.Store.UpsertUserTokens(ctx, tokens); err != nil {
		return fmt.Errorf("upsert user tokens of %s: %w", owner, err)
	}
	s.Logger.Debug("refreshed portfolio", zap.String("owner", owner), zap.Int("tokens", len(tokens)))
	return nil
}

func lowerKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] += v
	}
	return out
}
