// Package db persists pools, their activity ledger, and the per-chain ingestion cursors in MongoDB.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/retry"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("document not found")

// Collection names.
const (
	PoolCollection         = "pools"
	PoolActivityCollection = "pool_activities"
	SyncStatusCollection   = "sync_status"
	WhitelistCollection    = "whitelists"
	UserTokenCollection    = "user_tokens"
)

// DB is the MongoDB-backed store.
type DB struct {
	Logger *zap.Logger
	Name   string
	client *mongo.Client
	now    func() time.Time
}

// New connects to MONGO_URI and selects MONGO_DB, retrying until the server answers a ping.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	uri := utils.Env("MONGO_URI", "mongodb://localhost:27017")
	name := utils.Env("MONGO_DB", "funding_machine")

	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var client *mongo.Client
	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "mongo_connection", func() error {
		c, err := mongo.Connect(connCtx, options.Client().ApplyURI(uri))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		if err := c.Ping(connCtx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			return fmt.Errorf("ping mongo: %w", err)
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to MongoDB", zap.String("db", name))
	return NewWithClient(client, name, logger), nil
}

// NewWithClient wraps an already connected client.
func NewWithClient(client *mongo.Client, name string, logger *zap.Logger) *DB {
	return &DB{Logger: logger, Name: name, client: client, now: time.Now}
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

func (db *DB) collection(name string) *mongo.Collection {
	return db.client.Database(db.Name).Collection(name)
}

// indexModels lists the indexes of every collection, in creation order.
func indexModels() []collectionIndexes {
	return []collectionIndexes{
		{PoolCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "chainId", Value: 1}, {Key: "status", Value: 1}, {Key: "updatedAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextExecutionAt", Value: 1}}},
			{Keys: bson.D{{Key: "ownerAddress", Value: 1}, {Key: "chainId", Value: 1}}},
			{Keys: bson.D{{Key: "progressPercent", Value: -1}}},
		}},
		{PoolActivityCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "eventHash", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "poolId", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
		{SyncStatusCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "chainId", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		// The same token address may be whitelisted on several chains.
		{WhitelistCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "chainId", Value: 1}, {Key: "address", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{UserTokenCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "ownerAddress", Value: 1}, {Key: "tokenAddress", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "total", Value: -1}}},
		}},
	}
}

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

// EnsureIndexes creates the indexes the sync paths rely on. Existing indexes are left as is.
func (db *DB) EnsureIndexes(ctx context.Context) ([]string, error) {
	var res []string
	for _, x := range indexModels() {
		names, err := db.collection(x.collection).Indexes().CreateMany(ctx, x.models)
		if err != nil {
			return res, fmt.Errorf("create indexes on %s: %w", x.collection, err)
		}
		res = append(res, names...)
	}
	return res, nil
}

func bulkWrite(ctx context.Context, coll *mongo.Collection, writes []mongo.WriteModel) error {
	if len(writes) == 0 {
		return nil
	}
	if _, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk write %s: %w", coll.Name(), err)
	}
	return nil
}
