package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astahiam/dtde/internal/entities"
)

func validShard(id string, tier entities.Tier, priority int) entities.ShardDescriptor {
	return entities.ShardDescriptor{
		ConnectionDescriptor: "postgres://" + id,
		ShardID:              id,
		Tier:                 tier,
		Priority:             priority,
	}
}

func TestBuildRejectsDuplicateShardID(t *testing.T) {
	_, errs := Build(NewBuilder().
		AddShard(validShard("s1", entities.TierHot, 0)).
		AddShard(validShard("s1", entities.TierHot, 1)))
	require.NotEmpty(t, errs)
}

func TestBuildRejectsInvalidShard(t *testing.T) {
	_, errs := Build(NewBuilder().AddShard(entities.ShardDescriptor{ShardID: "s1"}))
	require.NotEmpty(t, errs)
}

func TestBuildRejectsHashStrategyWithoutShardCount(t *testing.T) {
	_, errs := Build(NewBuilder().
		AddShard(validShard("s1", entities.TierHot, 0)).
		AddEntity(entities.EntityShardingConfig{
			EntityType: "Order",
			Kind:       entities.StrategyHash,
			Hash:       &entities.HashConfig{ShardCount: 0},
		}))
	require.NotEmpty(t, errs)
}

func TestBuildRejectsManualStrategyWithNoWritableShard(t *testing.T) {
	_, errs := Build(NewBuilder().
		AddShard(validShard("s1", entities.TierHot, 0)).
		AddEntity(entities.EntityShardingConfig{
			EntityType: "Order",
			Kind:       entities.StrategyManual,
			Manual:     &entities.ManualConfig{Rules: []entities.ManualRule{{ShardID: "s1", Writable: false}}},
		}))
	require.NotEmpty(t, errs)
}

func TestBuildRejectsOverlappingDateRanges(t *testing.T) {
	jan := validShard("s1", entities.TierHot, 0)
	jan.DateRange = &entities.DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	feb := validShard("s2", entities.TierHot, 1)
	feb.DateRange = &entities.DateRange{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}

	_, errs := Build(NewBuilder().
		AddShard(jan).
		AddShard(feb).
		AddEntity(entities.EntityShardingConfig{EntityType: "Event", Kind: entities.StrategyDate, Date: &entities.DateConfig{}}))
	require.NotEmpty(t, errs)
}

func TestBuildSucceedsWithNonOverlappingDateRanges(t *testing.T) {
	jan := validShard("s1", entities.TierHot, 0)
	jan.DateRange = &entities.DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	feb := validShard("s2", entities.TierHot, 1)
	feb.DateRange = &entities.DateRange{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

	reg, errs := Build(NewBuilder().
		AddShard(jan).
		AddShard(feb).
		AddEntity(entities.EntityShardingConfig{EntityType: "Event", Kind: entities.StrategyDate, Date: &entities.DateConfig{}}))
	require.Empty(t, errs)
	require.NotNil(t, reg)
}

func TestDefaultShardPrefersHotLowestPriority(t *testing.T) {
	reg, errs := Build(NewBuilder().
		AddShard(validShard("cold1", entities.TierCold, 0)).
		AddShard(validShard("hot2", entities.TierHot, 2)).
		AddShard(validShard("hot1", entities.TierHot, 1)))
	require.Empty(t, errs)

	d, ok := reg.DefaultShard()
	require.True(t, ok)
	assert.Equal(t, "hot1", d.ShardID)
}

func TestDefaultShardFallsBackWhenNoHotShard(t *testing.T) {
	reg, errs := Build(NewBuilder().AddShard(validShard("cold1", entities.TierCold, 0)))
	require.Empty(t, errs)

	d, ok := reg.DefaultShard()
	require.True(t, ok)
	assert.Equal(t, "cold1", d.ShardID)
}

func TestDefaultShardNoneWritable(t *testing.T) {
	readOnly := validShard("s1", entities.TierHot, 0)
	readOnly.IsReadOnly = true
	reg, errs := Build(NewBuilder().AddShard(readOnly))
	require.Empty(t, errs)

	_, ok := reg.DefaultShard()
	assert.False(t, ok)
}

func TestEntityMetadataUnconfigured(t *testing.T) {
	reg, errs := Build(NewBuilder().AddShard(validShard("s1", entities.TierHot, 0)))
	require.Empty(t, errs)

	_, ok := reg.EntityMetadata("Unknown")
	assert.False(t, ok)
}

func TestShardIDsPreservesRegistrationOrder(t *testing.T) {
	reg, errs := Build(NewBuilder().
		AddShard(validShard("s1", entities.TierHot, 0)).
		AddShard(validShard("s2", entities.TierHot, 1)).
		AddShard(validShard("s3", entities.TierHot, 2)))
	require.Empty(t, errs)
	assert.Equal(t, []string{"s1", "s2", "s3"}, reg.ShardIDs())
}
