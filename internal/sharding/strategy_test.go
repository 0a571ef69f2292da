package sharding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astahiam/dtde/internal/entities"
)

type order struct {
	Region string
	ID     string
	Name   string
}

func TestPropertyStrategyRoute(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Order",
		Kind:       entities.StrategyProperty,
		Property: &entities.PropertyConfig{
			KeyProperty:  "Region",
			Selector:     FieldSelector("Region"),
			ValueToShard: map[string]string{"eu": "EU", "us": "US"},
			DefaultShard: "US",
		},
	}, nil, nil)
	require.NoError(t, err)

	shardID, err := s.Route(order{Region: "EU"})
	require.NoError(t, err)
	assert.Equal(t, "EU", shardID)

	shardID, err = s.Route(order{Region: ""})
	require.NoError(t, err)
	assert.Equal(t, "US", shardID)
}

func TestHashStrategyIsDeterministic(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Order",
		Kind:       entities.StrategyHash,
		Hash: &entities.HashConfig{
			KeyProperty: "ID",
			Selector:    FieldSelector("ID"),
			ShardCount:  4,
		},
	}, nil, nil)
	require.NoError(t, err)

	first, err := s.Route(order{ID: "abc-123"})
	require.NoError(t, err)
	second, err := s.Route(order{ID: "abc-123"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestManualStrategyRejectsMultipleMatches(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Order",
		Kind:       entities.StrategyManual,
		Manual: &entities.ManualConfig{Rules: []entities.ManualRule{
			{ShardID: "a", Writable: true, Predicate: func(any) (bool, error) { return true, nil }},
			{ShardID: "b", Writable: true, Predicate: func(any) (bool, error) { return true, nil }},
		}},
	}, nil, nil)
	require.NoError(t, err)

	_, err = s.Route(order{})
	require.Error(t, err)
	var misconfigured *entities.MisconfiguredRouting
	assert.ErrorAs(t, err, &misconfigured)
}

func TestManualStrategyBreaksTieOnHotTierThenPriority(t *testing.T) {
	descriptors := map[string]entities.ShardDescriptor{
		"warm": {ShardID: "warm", Tier: entities.TierWarm, Priority: 0},
		"hot1": {ShardID: "hot1", Tier: entities.TierHot, Priority: 5},
		"hot0": {ShardID: "hot0", Tier: entities.TierHot, Priority: 0},
	}
	lookup := func(id string) (entities.ShardDescriptor, bool) {
		d, ok := descriptors[id]
		return d, ok
	}

	s, err := New(entities.EntityShardingConfig{
		EntityType: "Order",
		Kind:       entities.StrategyManual,
		Manual: &entities.ManualConfig{Rules: []entities.ManualRule{
			{ShardID: "warm", Writable: true, Predicate: func(any) (bool, error) { return true, nil }},
			{ShardID: "hot1", Writable: true, Predicate: func(any) (bool, error) { return true, nil }},
			{ShardID: "hot0", Writable: true, Predicate: func(any) (bool, error) { return true, nil }},
		}},
	}, nil, lookup)
	require.NoError(t, err)

	shardID, err := s.Route(order{})
	require.NoError(t, err)
	assert.Equal(t, "hot0", shardID)
}

func TestManualStrategyRejectsNonWritableMatch(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Order",
		Kind:       entities.StrategyManual,
		Manual: &entities.ManualConfig{Rules: []entities.ManualRule{
			{ShardID: "a", Writable: false, Predicate: func(any) (bool, error) { return true, nil }},
		}},
	}, nil, nil)
	require.NoError(t, err)

	_, err = s.Route(order{})
	var noShard *entities.NoWritableShard
	assert.ErrorAs(t, err, &noShard)
}

func TestAlphabetStrategyFallsBackToDefault(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Order",
		Kind:       entities.StrategyAlphabet,
		Alphabet: &entities.AlphabetConfig{
			KeyProperty:  "Name",
			Selector:     FieldSelector("Name"),
			Ranges:       []entities.AlphabetRange{{LowChar: 'A', HighChar: 'M', ShardID: "early"}},
			DefaultShard: "late",
		},
	}, nil, nil)
	require.NoError(t, err)

	shardID, err := s.Route(order{Name: "Zebra"})
	require.NoError(t, err)
	assert.Equal(t, "late", shardID)

	shardID, err = s.Route(order{Name: "apple"})
	require.NoError(t, err)
	assert.Equal(t, "early", shardID)
}

func TestDateStrategyRoutesByWindow(t *testing.T) {
	jan := entities.DateShardEntry{Range: entities.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}, ShardID: "jan"}
	feb := entities.DateShardEntry{Range: entities.DateRange{
		Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}, ShardID: "feb"}

	selector := func(e any) (any, error) { return e.(time.Time), nil }
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Event",
		Kind:       entities.StrategyDate,
		Date:       &entities.DateConfig{DateProperty: "CreatedAt", Selector: selector, Shards: []entities.DateShardEntry{jan, feb}},
	}, nil, nil)
	require.NoError(t, err)

	shardID, err := s.Route(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "jan", shardID)

	shardID, err = s.Route(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "feb", shardID)
}

func TestRowCountStrategyFailsClosedWhenFull(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Log",
		Kind:       entities.StrategyRowCount,
		RowCount: &entities.RowCountConfig{
			MaxRowsPerShard: 10,
			RowCounter:      func(string) (int, error) { return 10, nil },
		},
	}, nil, nil)
	require.NoError(t, err)

	setter := s.(interface{ SetShards([]string) })
	setter.SetShards([]string{"old", "new"})

	_, err = s.Route(nil)
	var noShard *entities.NoWritableShard
	assert.ErrorAs(t, err, &noShard)
}

func TestRowCountStrategyReversesToNewestFirst(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Log",
		Kind:       entities.StrategyRowCount,
		RowCount:   &entities.RowCountConfig{MaxRowsPerShard: 100},
	}, nil, nil)
	require.NoError(t, err)

	setter := s.(interface{ SetShards([]string) })
	setter.SetShards([]string{"old", "mid", "new"})

	shardID, err := s.Route(nil)
	require.NoError(t, err)
	assert.Equal(t, "new", shardID)
}

func TestExpressionStrategyFallsBackToAllShardsForCandidates(t *testing.T) {
	s, err := New(entities.EntityShardingConfig{
		EntityType: "Widget",
		Kind:       entities.StrategyExpression,
		Expression: &entities.ExpressionConfig{
			Route: func(any) (string, error) { return "x", nil },
		},
	}, nil, nil)
	require.NoError(t, err)

	setter := s.(interface{ SetShards([]string) })
	setter.SetShards([]string{"a", "b", "c"})

	shardIDs, err := s.Candidates(entities.PredicateSet{}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, shardIDs)
}
