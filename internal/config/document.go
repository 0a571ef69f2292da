package config

import (
	"fmt"
	"time"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/registry"
	"github.com/astahiam/dtde/internal/sharding"
)

// BuildRegistry turns a decoded Document into a live Registry,
// constructing a sharding.Strategy per entity along the way. Only the
// Property and Hash strategies are built from a document (via
// ValueToShard/DefaultShard and ShardCount); an entity naming any other
// strategy makes BuildRegistry fail, so Range/Date/Alphabet/RowCount/
// Expression/Manual entities must be added to a registry.Builder
// programmatically instead.
func BuildRegistry(doc *Document) (*registry.Registry, []error) {
	b := registry.NewBuilder()

	for _, s := range doc.Shards {
		d := entities.ShardDescriptor{
			ConnectionDescriptor: s.ConnectionDescriptor,
			ShardID:              s.ShardID,
			DisplayName:          s.DisplayName,
			TableNameOverride:    s.TableNameOverride,
			Tier:                 entities.Tier(s.Tier),
			StorageMode:          entities.StorageMode(doc.StorageMode),
			Priority:             s.Priority,
			IsReadOnly:           s.IsReadOnly,
		}
		if s.KeyRangeLow != "" || s.KeyRangeHigh != "" {
			d.KeyRange = &entities.KeyRange{Low: s.KeyRangeLow, High: s.KeyRangeHigh}
		}
		if s.DateRangeStart != "" {
			start, err := time.Parse(time.RFC3339, s.DateRangeStart)
			if err != nil {
				return nil, []error{fmt.Errorf("shard %q: invalid date_range_start: %w", s.ShardID, err)}
			}
			var end time.Time
			if s.DateRangeEnd != "" {
				end, err = time.Parse(time.RFC3339, s.DateRangeEnd)
				if err != nil {
					return nil, []error{fmt.Errorf("shard %q: invalid date_range_end: %w", s.ShardID, err)}
				}
			}
			d.DateRange = &entities.DateRange{Start: start, End: end}
		}
		b.AddShard(d)
	}

	for _, e := range doc.Entities {
		cfg, err := entityDocumentToConfig(e)
		if err != nil {
			return nil, []error{err}
		}
		b.AddEntity(cfg)
	}

	return registry.Build(b)
}

func entityDocumentToConfig(e EntityDocument) (entities.EntityShardingConfig, error) {
	cfg := entities.EntityShardingConfig{EntityType: e.EntityType, IsCoLocatedWith: e.IsCoLocatedWith}
	if e.IsCoLocatedWith != "" {
		return cfg, nil
	}

	switch e.Strategy {
	case string(entities.StrategyProperty):
		cfg.Kind = entities.StrategyProperty
		cfg.Property = &entities.PropertyConfig{
			KeyProperty:  e.KeyProperty,
			Selector:     sharding.FieldSelector(e.KeyProperty),
			ValueToShard: e.ValueToShard,
			DefaultShard: e.DefaultShard,
		}
	case string(entities.StrategyHash):
		cfg.Kind = entities.StrategyHash
		cfg.Hash = &entities.HashConfig{
			KeyProperty: e.KeyProperty,
			Selector:    sharding.FieldSelector(e.KeyProperty),
			ShardCount:  e.ShardCount,
		}
	default:
		return cfg, fmt.Errorf("entity %q: strategy %q is not constructible from a configuration document", e.EntityType, e.Strategy)
	}
	return cfg, nil
}
