// Package registry implements the metadata catalog: an
// immutable-after-construction map from shard id to ShardDescriptor and
// from entity type to EntityShardingConfig, built once and guarded by
// a sync.RWMutex for O(1) lookups thereafter.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/astahiam/dtde/internal/entities"
)

// Registry is the read-only-after-construction catalog of shards and
// per-entity sharding configuration. Build it once with a Builder.
type Registry struct {
	mu       sync.RWMutex
	shards   map[string]entities.ShardDescriptor
	order    []string
	entities map[string]entities.EntityShardingConfig
}

// EntityMetadata returns the sharding configuration for an entity
// type, or (zero, false) if that type is unconfigured — unconfigured
// types bypass the engine entirely.
func (r *Registry) EntityMetadata(typeID string) (entities.EntityShardingConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.entities[typeID]
	return cfg, ok
}

// Shard returns a copy of a shard descriptor by id.
func (r *Registry) Shard(shardID string) (entities.ShardDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.shards[shardID]
	return d, ok
}

// AllShards returns every shard descriptor, in the order they were
// registered (construction order, stable across calls).
func (r *Registry) AllShards() []entities.ShardDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.ShardDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.shards[id])
	}
	return out
}

// ShardIDs returns every registered shard id in construction order.
func (r *Registry) ShardIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultShard returns the shard entries not routed by a configured
// entity fall back to: the lowest-priority Hot-tier writable shard, or
// failing that the lowest-priority writable shard of any tier. This
// implements the Open Question decision in DESIGN.md (unknown entity
// types mid cross-shard transaction go to "typically first Hot").
func (r *Registry) DefaultShard() (entities.ShardDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *entities.ShardDescriptor
	var bestAny *entities.ShardDescriptor
	for _, id := range r.order {
		d := r.shards[id]
		if !d.Writable() {
			continue
		}
		if bestAny == nil || d.Priority < bestAny.Priority {
			cp := d
			bestAny = &cp
		}
		if d.Tier == entities.TierHot && (best == nil || d.Priority < best.Priority) {
			cp := d
			best = &cp
		}
	}
	if best != nil {
		return *best, true
	}
	if bestAny != nil {
		return *bestAny, true
	}
	return entities.ShardDescriptor{}, false
}

// Builder accumulates shards and entity configurations in memory
// (fluent-builder calls, a config.Document, or per-entity ORM
// model-building captures all funnel here) and produces an immutable
// Registry via Build, which runs Validate exactly once.
type Builder struct {
	shards   []entities.ShardDescriptor
	entities []entities.EntityShardingConfig
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddShard registers one shard descriptor.
func (b *Builder) AddShard(d entities.ShardDescriptor) *Builder {
	b.shards = append(b.shards, d)
	return b
}

// AddEntity registers the sharding configuration for one entity type.
func (b *Builder) AddEntity(cfg entities.EntityShardingConfig) *Builder {
	b.entities = append(b.entities, cfg)
	return b
}

// Build validates the accumulated shards/entities and, on success,
// returns an immutable Registry. On failure it returns every
// validation error found, not just the first.
func Build(b *Builder) (*Registry, []error) {
	r := &Registry{
		shards:   make(map[string]entities.ShardDescriptor, len(b.shards)),
		entities: make(map[string]entities.EntityShardingConfig, len(b.entities)),
	}

	var errs []error
	seen := make(map[string]bool, len(b.shards))
	for _, d := range b.shards {
		if err := entities.ValidateStruct(d); err != nil {
			errs = append(errs, fmt.Errorf("shard %q: %w", d.ShardID, err))
			continue
		}
		if seen[d.ShardID] {
			errs = append(errs, fmt.Errorf("duplicate shard id %q", d.ShardID))
			continue
		}
		seen[d.ShardID] = true
		r.shards[d.ShardID] = d
		r.order = append(r.order, d.ShardID)
	}

	for _, cfg := range b.entities {
		if cfg.EntityType == "" {
			errs = append(errs, fmt.Errorf("entity sharding config missing entity type"))
			continue
		}
		r.entities[cfg.EntityType] = cfg
	}

	errs = append(errs, validateSemantics(r, b)...)

	if len(errs) > 0 {
		return nil, errs
	}
	return r, nil
}

// validateSemantics rejects overlapping date ranges per entity,
// duplicate shard ids (already caught above), hash strategies with a
// zero shard count, and manual strategies with zero writable shards.
func validateSemantics(r *Registry, b *Builder) []error {
	var errs []error

	byEntityDateShards := make(map[string][]entities.ShardDescriptor)
	for _, cfg := range b.entities {
		if cfg.Kind != entities.StrategyDate {
			continue
		}
		var shards []entities.ShardDescriptor
		for _, d := range r.shards {
			if d.DateRange != nil {
				shards = append(shards, d)
			}
		}
		byEntityDateShards[cfg.EntityType] = shards
	}
	for entityType, shards := range byEntityDateShards {
		sort.Slice(shards, func(i, j int) bool { return shards[i].DateRange.Start.Before(shards[j].DateRange.Start) })
		for i := 0; i < len(shards); i++ {
			for j := i + 1; j < len(shards); j++ {
				if shards[i].DateRange.Overlaps(*shards[j].DateRange) {
					errs = append(errs, fmt.Errorf("entity %q: date ranges of shard %q and %q overlap",
						entityType, shards[i].ShardID, shards[j].ShardID))
				}
			}
		}
	}

	for _, cfg := range b.entities {
		switch cfg.Kind {
		case entities.StrategyHash:
			if cfg.Hash == nil || cfg.Hash.ShardCount <= 0 {
				errs = append(errs, fmt.Errorf("entity %q: hash strategy requires a positive shard count", cfg.EntityType))
			}
		case entities.StrategyManual:
			if cfg.Manual == nil || !anyWritable(cfg.Manual.Rules) {
				errs = append(errs, fmt.Errorf("entity %q: manual strategy requires at least one writable shard", cfg.EntityType))
			}
		}
	}

	return errs
}

func anyWritable(rules []entities.ManualRule) bool {
	for _, rule := range rules {
		if rule.Writable {
			return true
		}
	}
	return false
}
