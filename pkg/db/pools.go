package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/systemis/funding-machine-backend/pkg/entity"
)

// ChainPools is one chain's share of a fleet selection.
type ChainPools struct {
	ChainID entity.ChainID `bson:"_id"`
	Pools   []entity.Pool  `bson:"pools"`
}

// SyncSelection picks pools for the fleet-wide sync. UpdatedAfter is inclusive and
// UpdatedBefore exclusive.
type SyncSelection struct {
	ExcludedChains []string
	Statuses       []entity.PoolStatus
	UpdatedAfter   time.Time
	UpdatedBefore  time.Time
}

// PoolWrite is one pool's share of an upsert. Metrics is optional.
type PoolWrite struct {
	Snapshot *entity.PoolSnapshot
	Metrics  *entity.Metrics
}

func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (db *DB) findPools(ctx context.Context, filter bson.M) ([]entity.Pool, error) {
	cur, err := db.collection(PoolCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find pools: %w", err)
	}
	defer cur.Close(ctx)
	var ps []entity.Pool
	if err := cur.All(ctx, &ps); err != nil {
		return nil, fmt.Errorf("decode pools: %w", err)
	}
	return ps, nil
}

// FindPoolByID returns ErrNotFound when the pool does not exist.
func (db *DB) FindPoolByID(ctx context.Context, id primitive.ObjectID) (*entity.Pool, error) {
	var p entity.Pool
	if err := db.collection(PoolCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("pool %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// FindPoolsByOwner lists the pools of one owner on one chain.
func (db *DB) FindPoolsByOwner(ctx context.Context, owner string, chainID entity.ChainID) ([]entity.Pool, error) {
	return db.findPools(ctx, bson.M{"ownerAddress": owner, "chainId": chainID})
}

// SelectPoolsForSync groups the pools matching sel by chain.
func (db *DB) SelectPoolsForSync(ctx context.Context, sel SyncSelection) ([]ChainPools, error) {
	cur, err := db.collection(PoolCollection).Aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{
			"chainId":   bson.M{"$nin": sel.ExcludedChains},
			"status":    bson.M{"$in": sel.Statuses},
			"updatedAt": bson.M{"$gte": sel.UpdatedAfter, "$lt": sel.UpdatedBefore},
		}},
		bson.M{"$group": bson.M{
			"_id":   "$chainId",
			"pools": bson.M{"$push": "$$ROOT"},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate pools: %w", err)
	}
	defer cur.Close(ctx)
	var groups []ChainPools
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode pool groups: %w", err)
	}
	return groups, nil
}

// DueBuyPools lists active pools whose next batch is due.
func (db *DB) DueBuyPools(ctx context.Context, now time.Time, excludedChains []string) ([]entity.Pool, error) {
	return db.findPools(ctx, bson.M{
		"chainId":         bson.M{"$nin": excludedChains},
		"status":          entity.PoolStatusActive,
		"nextExecutionAt": bson.M{"$lte": now},
		"startTime":       bson.M{"$lte": now},
	})
}

// DueClosePools lists started pools that still hold target tokens.
func (db *DB) DueClosePools(ctx context.Context, now time.Time, excludedChains []string) ([]entity.Pool, error) {
	return db.findPools(ctx, bson.M{
		"chainId":                   bson.M{"$nin": excludedChains},
		"status":                    bson.M{"$ne": entity.PoolStatusEnded},
		"currentTargetTokenBalance": bson.M{"$gt": 0},
		"startTime":                 bson.M{"$lte": now},
	})
}

// DistinctOwners lists every owner with at least one pool outside the excluded chains.
func (db *DB) DistinctOwners(ctx context.Context, excludedChains []string) ([]string, error) {
	vals, err := db.collection(PoolCollection).Distinct(ctx, "ownerAddress", bson.M{
		"chainId":      bson.M{"$nin": excludedChains},
		"ownerAddress": bson.M{"$nin": bson.A{nil, ""}},
	})
	if err != nil {
		return nil, fmt.Errorf("distinct owners: %w", err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// UpsertPools overwrites the chain-derived fields of each pool, and its metrics when set,
// in one bulk write. Missing pools are created.
func (db *DB) UpsertPools(ctx context.Context, pools []PoolWrite) error {
	now := db.now()
	writes := make([]mongo.WriteModel, 0, len(pools))
	for _, w := range pools {
		if w.Snapshot == nil {
			continue
		}
		set, err := toDoc(w.Snapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot %s: %w", w.Snapshot.ID.Hex(), err)
		}
		if w.Metrics != nil {
			metrics, err := toDoc(w.Metrics)
			if err != nil {
				return fmt.Errorf("encode metrics %s: %w", w.Snapshot.ID.Hex(), err)
			}
			for k, v := range metrics {
				set[k] = v
			}
		}
		set["updatedAt"] = now
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.Snapshot.ID}).
			SetUpdate(bson.M{
				"$set":         set,
				"$setOnInsert": bson.M{"createdAt": now},
			}).
			SetUpsert(true))
	}
	return bulkWrite(ctx, db.collection(PoolCollection), writes)
}

// UpdatePoolDates stamps lifecycle dates derived from ingested activities.
func (db *DB) UpdatePoolDates(ctx context.Context, dates map[primitive.ObjectID]entity.PoolDates) error {
	writes := make([]mongo.WriteModel, 0, len(dates))
	for id, d := range dates {
		if d.Empty() {
			continue
		}
		set, err := toDoc(d)
		if err != nil {
			return fmt.Errorf("encode dates %s: %w", id.Hex(), err)
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": set}).
			SetUpsert(true))
	}
	return bulkWrite(ctx, db.collection(PoolCollection), writes)
}

// CreateEmptyPool inserts a placeholder the owner fills in on-chain later.
func (db *DB) CreateEmptyPool(ctx context.Context, owner string, chainID entity.ChainID) (*entity.Pool, error) {
	now := db.now()
	p := &entity.Pool{
		ID:           primitive.NewObjectID(),
		ChainID:      chainID,
		OwnerAddress: owner,
		Status:       entity.PoolStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := db.collection(PoolCollection).InsertOne(ctx, p); err != nil {
		return nil, fmt.Errorf("insert pool: %w", err)
	}
	return p, nil
}

type tokenTotal struct {
	Token string  `bson:"_id"`
	Total float64 `bson:"total"`
}

func (db *DB) sumBy(ctx context.Context, owner, tokenField, amountField string) (map[string]float64, error) {
	cur, err := db.collection(PoolCollection).Aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{"ownerAddress": owner}},
		bson.M{"$group": bson.M{
			"_id":   "$" + tokenField,
			"total": bson.M{"$sum": "$" + amountField},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", amountField, err)
	}
	defer cur.Close(ctx)
	var rows []tokenTotal
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s totals: %w", amountField, err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Token] = r.Total
	}
	return out, nil
}

// OwnerTokenTotals sums the owner's remaining base balances per base token and target
// balances per target token.
func (db *DB) OwnerTokenTotals(ctx context.Context, owner string) (base, target map[string]float64, err error) {
	base, err = db.sumBy(ctx, owner, "baseTokenAddress", "remainingBaseTokenBalance")
	if err != nil {
		return nil, nil, err
	}
	target, err = db.sumBy(ctx, owner, "targetTokenAddress", "currentTargetTokenBalance")
	if err != nil {
		return nil, nil, err
	}
	return base, target, nil
}
