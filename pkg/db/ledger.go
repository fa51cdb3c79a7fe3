package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// UpsertActivities writes ledger entries keyed by event hash. Re-delivering the same
// entries leaves the collection unchanged.
func (db *DB) UpsertActivities(ctx context.Context, activities []entity.PoolActivity) error {
	writes := make([]mongo.WriteModel, 0, len(activities))
	for i := range activities {
		a := &activities[i]
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"eventHash": a.EventHash}).
			SetUpdate(bson.M{"$set": a}).
			SetUpsert(true))
	}
	return bulkWrite(ctx, db.collection(PoolActivityCollection), writes)
}

// ListActivities returns the most recent entries of a pool.
func (db *DB) ListActivities(ctx context.Context, filter bson.M, limit int64) ([]entity.PoolActivity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := db.collection(PoolActivityCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find activities: %w", err)
	}
	defer cur.Close(ctx)
	var out []entity.PoolActivity
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return out, nil
}

// GetSyncStatus returns ErrNotFound when the chain has no cursor.
func (db *DB) GetSyncStatus(ctx context.Context, chainID entity.ChainID) (*entity.SyncStatus, error) {
	var s entity.SyncStatus
	if err := db.collection(SyncStatusCollection).FindOne(ctx, bson.M{"chainId": chainID}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("sync status %s: %w", chainID, ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

// ListSyncStatuses returns every chain cursor.
func (db *DB) ListSyncStatuses(ctx context.Context) ([]entity.SyncStatus, error) {
	cur, err := db.collection(SyncStatusCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find sync statuses: %w", err)
	}
	defer cur.Close(ctx)
	var out []entity.SyncStatus
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode sync statuses: %w", err)
	}
	return out, nil
}

// AdvanceSyncedBlock moves the chain cursor forward. It never moves it back.
func (db *DB) AdvanceSyncedBlock(ctx context.Context, chainID entity.ChainID, block uint64) error {
	_, err := db.collection(SyncStatusCollection).UpdateOne(ctx,
		bson.M{"chainId": chainID},
		bson.M{"$max": bson.M{"syncedBlock": int64(block)}},
	)
	if err != nil {
		return fmt.Errorf("advance synced block %s: %w", chainID, err)
	}
	return nil
}

// ListWhitelist returns every whitelisted token.
func (db *DB) ListWhitelist(ctx context.Context) ([]entity.Whitelist, error) {
	cur, err := db.collection(WhitelistCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find whitelist: %w", err)
	}
	defer cur.Close(ctx)
	var out []entity.Whitelist
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode whitelist: %w", err)
	}
	return out, nil
}

// UpsertUserTokens replaces the portfolio totals of each owner and token pair.
func (db *DB) UpsertUserTokens(ctx context.Context, tokens []entity.UserToken) error {
	now := db.now()
	writes := make([]mongo.WriteModel, 0, len(tokens))
	for _, t := range tokens {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"ownerAddress": t.OwnerAddress, "tokenAddress": t.TokenAddress}).
			SetUpdate(bson.M{
				"$set":         bson.M{"total": t.Total, "updatedAt": now},
				"$setOnInsert": bson.M{"createdAt": now},
			}).
			SetUpsert(true))
	}
	return bulkWrite(ctx, db.collection(UserTokenCollection), writes)
}
