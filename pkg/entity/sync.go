package entity

// SyncStatus is the per-chain event ingestion cursor. SyncedBlock is the last block
// whose logs were fully processed.
type SyncStatus struct {
	ChainID       ChainID `bson:"chainId" json:"chainId"`
	SyncedBlock   uint64  `bson:"syncedBlock" json:"syncedBlock"`
	StartingBlock uint64  `bson:"startingBlock" json:"startingBlock"`
	BlockDiff     uint64  `bson:"blockDiff" json:"blockDiff"`
}

// Whitelist is the token metadata the mapper needs to price amounts.
type Whitelist struct {
	ChainID        ChainID `bson:"chainId" json:"chainId"`
	Address        string  `bson:"address" json:"address"`
	Name           string  `bson:"name" json:"name"`
	Symbol         string  `bson:"symbol" json:"symbol"`
	Decimals       int32   `bson:"decimals" json:"decimals"`
	EstimatedValue float64 `bson:"estimatedValue" json:"estimatedValue"`
	IsNativeCoin   bool    `bson:"isNativeCoin" json:"isNativeCoin"`
}

// UserToken is the portfolio total an owner holds of one token across all pools.
type UserToken struct {
	OwnerAddress string  `bson:"ownerAddress" json:"ownerAddress"`
	TokenAddress string  `bson:"tokenAddress" json:"tokenAddress"`
	Total        float64 `bson:"total" json:"total"`
}
