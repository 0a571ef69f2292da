package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 8, cfg.MaxParallelShards)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("DTDE_MAX_PARALLEL_SHARDS", "16")
	t.Setenv("DTDE_ENVIRONMENT", "production")

	cfg := Load()
	assert.Equal(t, 16, cfg.MaxParallelShards)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadDocumentDecodesShardsAndEntities(t *testing.T) {
	body := `{
		"storage_mode": "tables",
		"shards": [{"shard_id": "EU", "connection_descriptor": "postgres://eu", "tier": "hot"}],
		"entities": [{"entity_type": "Customer", "strategy": "property", "key_property": "Region",
			"value_to_shard": {"EU": "EU"}}]
	}`
	doc, err := LoadDocument(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "tables", doc.StorageMode)
	require.Len(t, doc.Shards, 1)
	assert.Equal(t, "EU", doc.Shards[0].ShardID)
	require.Len(t, doc.Entities, 1)
	assert.Equal(t, "property", doc.Entities[0].Strategy)
}

func TestLoadDocumentRejectsInvalidJSON(t *testing.T) {
	_, err := LoadDocument(strings.NewReader("not json"))
	assert.Error(t, err)
}
