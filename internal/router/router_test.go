package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/registry"
	"github.com/astahiam/dtde/internal/sharding"
)

type customer struct {
	Region string
	Name   string
}

func buildTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, errs := registry.Build(registry.NewBuilder().
		AddShard(entities.ShardDescriptor{ConnectionDescriptor: "mock://eu", ShardID: "EU", Tier: entities.TierHot}).
		AddShard(entities.ShardDescriptor{ConnectionDescriptor: "mock://us", ShardID: "US", Tier: entities.TierHot, Priority: 1}).
		AddEntity(entities.EntityShardingConfig{
			EntityType: "Customer",
			Kind:       entities.StrategyProperty,
			Property: &entities.PropertyConfig{
				KeyProperty:  "Region",
				Selector:     sharding.FieldSelector("Region"),
				ValueToShard: map[string]string{"EU": "EU", "US": "US"},
			},
		}).
		AddEntity(entities.EntityShardingConfig{
			EntityType:      "Invoice",
			IsCoLocatedWith: "Customer",
		}))
	require.Empty(t, errs)
	return reg
}

func TestTargetShardRoutesConfiguredEntity(t *testing.T) {
	rt := New(buildTestRegistry(t), nil)
	shardID, err := rt.TargetShard("Customer", customer{Region: "US"})
	require.NoError(t, err)
	assert.Equal(t, "US", shardID)
}

func TestTargetShardFollowsCoLocation(t *testing.T) {
	rt := New(buildTestRegistry(t), nil)
	shardID, err := rt.TargetShard("Invoice", customer{Region: "EU"})
	require.NoError(t, err)
	assert.Equal(t, "EU", shardID)
}

func TestTargetShardFallsBackToDefaultForUnconfigured(t *testing.T) {
	rt := New(buildTestRegistry(t), nil)
	shardID, err := rt.TargetShard("UnknownEntity", customer{})
	require.NoError(t, err)
	assert.Equal(t, "EU", shardID)
}

func TestCanWriteRejectsReadOnlyShard(t *testing.T) {
	reg, errs := registry.Build(registry.NewBuilder().
		AddShard(entities.ShardDescriptor{ConnectionDescriptor: "mock://eu", ShardID: "EU", Tier: entities.TierHot, IsReadOnly: true}))
	require.Empty(t, errs)

	rt := New(reg, nil)
	ok, err := rt.CanWrite("Customer", customer{}, "EU")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanWriteEnforcesTemporalValidity(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	reg, errs := registry.Build(registry.NewBuilder().
		AddShard(entities.ShardDescriptor{
			ConnectionDescriptor: "mock://jan",
			ShardID:              "jan",
			Tier:                 entities.TierHot,
			DateRange:            &entities.DateRange{Start: start, End: end},
		}).
		AddEntity(entities.EntityShardingConfig{
			EntityType: "Event",
			Kind:       entities.StrategyProperty,
			Property: &entities.PropertyConfig{
				KeyProperty:  "Name",
				Selector:     sharding.FieldSelector("Name"),
				ValueToShard: map[string]string{"x": "jan"},
			},
			Temporal: &entities.TemporalConfig{
				ValidFromProperty: "ValidFrom",
				Selector: func(e any) (any, error) {
					return e.(time.Time), nil
				},
			},
		}))
	require.Empty(t, errs)

	rt := New(reg, nil)
	ok, err := rt.CanWrite("Event", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "jan")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rt.CanWrite("Event", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "jan")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanWriteUnregisteredShard(t *testing.T) {
	rt := New(buildTestRegistry(t), nil)
	_, err := rt.CanWrite("Customer", customer{}, "GHOST")
	require.Error(t, err)
}

func TestTargetShardRejectsReadOnlyResolvedShard(t *testing.T) {
	reg, errs := registry.Build(registry.NewBuilder().
		AddShard(entities.ShardDescriptor{ConnectionDescriptor: "mock://eu", ShardID: "EU", Tier: entities.TierHot, IsReadOnly: true}).
		AddEntity(entities.EntityShardingConfig{
			EntityType: "Customer",
			Kind:       entities.StrategyProperty,
			Property: &entities.PropertyConfig{
				KeyProperty:  "Region",
				Selector:     sharding.FieldSelector("Region"),
				ValueToShard: map[string]string{"EU": "EU"},
			},
		}))
	require.Empty(t, errs)

	rt := New(reg, nil)
	_, err := rt.TargetShard("Customer", customer{Region: "EU"})
	require.Error(t, err)
	var noWritable *entities.NoWritableShard
	require.ErrorAs(t, err, &noWritable)
}
