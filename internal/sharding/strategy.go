// Package sharding implements the pure (entity) -> shard_id routing
// functions and (predicates) -> candidate-shard-set read planning, for
// all eight EntityShardingConfig variants.
package sharding

import (
	"reflect"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
)

// ShardLookup resolves a shard id to its descriptor, the same lookup
// registry.Registry.Shard provides — threaded in rather than importing
// registry directly so sharding stays a leaf package.
type ShardLookup func(shardID string) (entities.ShardDescriptor, bool)

// Strategy is the behavior every EntityShardingConfig variant
// implements: a write-side deterministic route and a read-side
// candidate-set computation.
type Strategy interface {
	// Route returns the single shard id a write to entity must land
	// on, or an error — typically *entities.NotRoutable; Manual and
	// RowCount can also fail with *entities.NoWritableShard, and Manual
	// with *entities.MisconfiguredRouting.
	Route(entity any) (string, error)
	// Candidates returns every shard id that could hold a row
	// matching predicates, optionally narrowed by an "as of"
	// temporal point (used only by the Date strategy). A nil
	// temporalPoint means "no temporal narrowing".
	Candidates(predicates entities.PredicateSet, temporalPoint any) ([]string, error)
}

// FieldSelector builds a KeySelector that reads an exported struct
// field (or a map[string]any key) by name via reflection — the
// bridge used when an EntityShardingConfig is built from the external
// configuration document (§6) rather than a programmatic closure.
// Reflection is used here, not an ecosystem library, because no
// dependency in the retrieval pack offers generic-entity field access
// without a full ORM attached (see DESIGN.md).
func FieldSelector(property string) entities.KeySelector {
	return func(entity any) (any, error) {
		if m, ok := entity.(map[string]any); ok {
			return m[property], nil
		}
		v := reflect.ValueOf(entity)
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, &entities.NotRoutable{Reason: "entity is not a struct or map"}
		}
		f := v.FieldByName(property)
		if !f.IsValid() {
			return nil, &entities.NotRoutable{Reason: "entity has no field " + property}
		}
		return f.Interface(), nil
	}
}

// New builds the Strategy implementation for an EntityShardingConfig,
// dispatching on its Kind and resolving the concrete type at
// config-build time instead of at call time. bus may be nil; only the
// RowCount strategy uses it, to publish ShardNeeded when its current
// shard fills up. lookup may be nil for every kind except Manual,
// which needs it to break ties between multiple writable matches.
func New(cfg entities.EntityShardingConfig, bus *events.Bus, lookup ShardLookup) (Strategy, error) {
	switch cfg.Kind {
	case entities.StrategyProperty:
		return &propertyStrategy{cfg: cfg.Property}, nil
	case entities.StrategyHash:
		return &hashStrategy{cfg: cfg.Hash}, nil
	case entities.StrategyRange:
		return &rangeStrategy{cfg: cfg.Range}, nil
	case entities.StrategyDate:
		return &dateStrategy{cfg: cfg.Date}, nil
	case entities.StrategyAlphabet:
		return &alphabetStrategy{cfg: cfg.Alphabet}, nil
	case entities.StrategyRowCount:
		return &rowCountStrategy{cfg: cfg.RowCount, entityType: cfg.EntityType, bus: bus}, nil
	case entities.StrategyExpression:
		return &expressionStrategy{cfg: cfg.Expression}, nil
	case entities.StrategyManual:
		return &manualStrategy{cfg: cfg.Manual, lookup: lookup}, nil
	default:
		return nil, &entities.NotRoutable{EntityType: cfg.EntityType, Reason: "unknown strategy kind"}
	}
}
