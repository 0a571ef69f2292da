// Package router implements the write router: resolving the target
// shard for an entity about to be saved, and guarding that the
// resolved shard is actually allowed to accept the write, including
// the temporal validity-window rule the Date strategy needs for
// writes.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
	"github.com/astahiam/dtde/internal/registry"
	"github.com/astahiam/dtde/internal/sharding"
)

// Router resolves the target shard for a write and tells callers
// whether a given shard may currently accept one.
type Router struct {
	reg *registry.Registry
	bus *events.Bus

	mu         sync.Mutex
	strategies map[string]sharding.Strategy
}

// New builds a Router over reg, publishing to bus (which may be nil).
func New(reg *registry.Registry, bus *events.Bus) *Router {
	return &Router{
		reg:        reg,
		bus:        bus,
		strategies: make(map[string]sharding.Strategy),
	}
}

// shardsSetter is implemented by strategies whose config carries no
// shard list of its own (RowCount, Expression) and so must be handed
// the registry's current shard ids after construction.
type shardsSetter interface {
	SetShards([]string)
}

func (rt *Router) strategyFor(cfg entities.EntityShardingConfig) (sharding.Strategy, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if s, ok := rt.strategies[cfg.EntityType]; ok {
		return s, nil
	}
	s, err := sharding.New(cfg, rt.bus, rt.reg.Shard)
	if err != nil {
		return nil, err
	}
	if setter, ok := s.(shardsSetter); ok {
		setter.SetShards(rt.reg.ShardIDs())
	}
	rt.strategies[cfg.EntityType] = s
	return s, nil
}

// TargetShard resolves the shard id entityType/entity must be written
// to. Co-located entities inherit their companion's resolved shard
// instead of computing their own route. Unconfigured entity types fall
// back to the registry's default shard. The resolved shard is checked
// against CanWrite before it is returned; a route landing on a
// read-only or archive-tier shard (or outside a temporal validity
// window) fails with NoWritableShard instead of succeeding silently.
func (rt *Router) TargetShard(entityType string, entity any) (string, error) {
	cfg, ok := rt.reg.EntityMetadata(entityType)
	if !ok {
		d, found := rt.reg.DefaultShard()
		if !found {
			return "", &entities.NoWritableShard{EntityType: entityType}
		}
		return d.ShardID, nil
	}

	if cfg.IsCoLocatedWith != "" {
		return rt.TargetShard(cfg.IsCoLocatedWith, entity)
	}

	strategy, err := rt.strategyFor(cfg)
	if err != nil {
		return "", err
	}
	shardID, err := strategy.Route(entity)
	if err != nil {
		return "", err
	}
	ok, err = rt.CanWrite(entityType, entity, shardID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &entities.NoWritableShard{EntityType: entityType}
	}
	return shardID, nil
}

// CanWrite reports whether shardID may currently accept a write for
// entityType/entity: the shard must be registered, not read-only, not
// Archive tier, and — for temporally-versioned entities — the entity's
// validity-from timestamp must fall inside the shard's DateRange.
func (rt *Router) CanWrite(entityType string, entity any, shardID string) (bool, error) {
	d, ok := rt.reg.Shard(shardID)
	if !ok {
		return false, fmt.Errorf("router: shard %q is not registered", shardID)
	}
	if !d.Writable() {
		return false, nil
	}

	cfg, ok := rt.reg.EntityMetadata(entityType)
	if !ok || cfg.Temporal == nil || cfg.Temporal.Selector == nil || d.DateRange == nil {
		return true, nil
	}

	validFrom, err := cfg.Temporal.Selector(entity)
	if err != nil {
		return false, err
	}
	ts, ok := validFrom.(time.Time)
	if !ok {
		return false, fmt.Errorf("router: temporal selector did not return a time.Time")
	}
	return d.DateRange.Contains(ts), nil
}
