package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestIndexModels(t *testing.T) {
	byCollection := map[string][]bson.D{}
	unique := map[string][]bool{}
	for _, x := range indexModels() {
		for _, m := range x.models {
			keys, ok := m.Keys.(bson.D)
			require.True(t, ok)
			byCollection[x.collection] = append(byCollection[x.collection], keys)
			unique[x.collection] = append(unique[x.collection], m.Options != nil && m.Options.Unique != nil && *m.Options.Unique)
		}
	}

	assert.Equal(t, "sync_status", SyncStatusCollection)
	require.Len(t, byCollection[SyncStatusCollection], 1)
	assert.Equal(t, bson.D{{Key: "chainId", Value: 1}}, byCollection[SyncStatusCollection][0])
	assert.True(t, unique[SyncStatusCollection][0])

	require.Len(t, byCollection[WhitelistCollection], 1)
	assert.Equal(t, bson.D{{Key: "chainId", Value: 1}, {Key: "address", Value: 1}}, byCollection[WhitelistCollection][0])
	assert.True(t, unique[WhitelistCollection][0])

	require.NotEmpty(t, byCollection[PoolActivityCollection])
	assert.Equal(t, bson.D{{Key: "eventHash", Value: 1}}, byCollection[PoolActivityCollection][0])
	assert.True(t, unique[PoolActivityCollection][0])
}
