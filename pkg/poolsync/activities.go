package poolsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/db"
	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/mapper"
)

// SyncAllPoolActivities ingests the next event window of every configured, syncable chain.
// Chains run concurrently and a failing chain does not hold back the others.
func (s *Syncer) SyncAllPoolActivities(ctx context.Context) error {
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, chainID := range s.Chains.ChainIDs() {
		chainID := chainID
		if !s.Policy.Syncable(chainID) {
			continue
		}
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			if _, err := s.SyncChainActivities(groupCtx, chainID); err != nil {
				s.Logger.Error("activity sync failed",
					zap.String("chainId", string(chainID)),
					zap.Error(err))
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.Logger.Warn("activity sync group encountered error", zap.Error(err))
	}
	return nil
}

// SyncChainActivities ingests one window after the chain cursor and returns the new cursor.
// The cursor only moves after the ledger and the pool dates are written, and it moves even
// when the window held no events.
func (s *Syncer) SyncChainActivities(ctx context.Context, chainID entity.ChainID) (uint64, error) {
	status, err := s.Store.GetSyncStatus(ctx, chainID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrSyncStatusMissing, chainID)
		}
		return 0, err
	}
	reader, err := s.Chains.Reader(ctx, chainID)
	if err != nil {
		return 0, fmt.Errorf("reader %s: %w", chainID, err)
	}
	batch, err := reader.FetchEvents(ctx, status.SyncedBlock+1, status.BlockDiff)
	if err != nil {
		return 0, fmt.Errorf("fetch events %s: %w", chainID, err)
	}

	tokens, err := s.tokens(ctx)
	if err != nil {
		return 0, err
	}
	activities := mapper.MapEvents(chainID, batch.Events, tokens)
	if err := s.Store.UpsertActivities(ctx, activities); err != nil {
		return 0, fmt.Errorf("upsert activities %s: %w", chainID, err)
	}
	if err := s.Store.UpdatePoolDates(ctx, mapper.LifecycleDates(activities)); err != nil {
		return 0, fmt.Errorf("update pool dates %s: %w", chainID, err)
	}
	if err := s.Store.AdvanceSyncedBlock(ctx, chainID, batch.SyncedBlock); err != nil {
		return 0, err
	}

	s.Logger.Info("ingested pool activities",
		zap.String("chainId", string(chainID)),
		zap.Uint64("fromBlock", batch.FromBlock),
		zap.Uint64("syncedBlock", batch.SyncedBlock),
		zap.Int("events", len(batch.Events)),
		zap.Int("activities", len(activities)))
	return batch.SyncedBlock, nil
}
