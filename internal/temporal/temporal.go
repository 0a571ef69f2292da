// Package temporal holds the thin write-routing contract the core
// consumes from the (external) temporal-versioning policy machine:
// turning one logical version-bump into the right set of physical
// writes. That contract lives here rather than in entities (which
// only carries the plain data shapes) or router (which must stay pure
// shard-resolution).
package temporal

import (
	"github.com/astahiam/dtde/internal/entities"
)

// Planner turns one VersionOperation into the PendingOp(s) a
// transaction participant must enqueue, resolving each side's target
// shard via shardOf.
type Planner struct {
	shardOf func(entityType string, shardKey any) (string, error)
}

// NewPlanner builds a Planner; shardOf is typically router.Router's
// strategy lookup narrowed to a single shard-key value rather than a
// full entity, since a version bump only carries the key, not the
// whole row.
func NewPlanner(shardOf func(entityType string, shardKey any) (string, error)) *Planner {
	return &Planner{shardOf: shardOf}
}

// PlannedWrite is one physical write a VersionOperation expands to,
// already bound to the shard it must land on.
type PlannedWrite struct {
	ShardID string
	Op      entities.PendingOp
}

// Plan expands op into one or two PlannedWrites: Create only inserts,
// Close only closes, and VersionOpBump closes the original row and
// inserts its successor — landing on two different shards when the
// entity's shard key changed across the version boundary.
func (p *Planner) Plan(op entities.VersionOperation) ([]PlannedWrite, error) {
	switch op.Kind {
	case entities.VersionOpCreate:
		shardID, err := p.shardOf(op.EntityType, op.NewShardKey)
		if err != nil {
			return nil, err
		}
		return []PlannedWrite{{ShardID: shardID, Op: entities.PendingOp{Kind: entities.PendingAdd, Entity: op}}}, nil

	case entities.VersionOpClose:
		shardID, err := p.shardOf(op.EntityType, op.OriginalShardKey)
		if err != nil {
			return nil, err
		}
		return []PlannedWrite{{ShardID: shardID, Op: entities.PendingOp{Kind: entities.PendingUpdate, Entity: op}}}, nil

	case entities.VersionOpBump:
		closeShard, err := p.shardOf(op.EntityType, op.OriginalShardKey)
		if err != nil {
			return nil, err
		}
		insertShard, err := p.shardOf(op.EntityType, op.NewShardKey)
		if err != nil {
			return nil, err
		}
		return []PlannedWrite{
			{ShardID: closeShard, Op: entities.PendingOp{Kind: entities.PendingUpdate, Entity: op}},
			{ShardID: insertShard, Op: entities.PendingOp{Kind: entities.PendingAdd, Entity: op}},
		}, nil

	default:
		return nil, nil
	}
}
