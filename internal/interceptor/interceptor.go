// Package interceptor implements the save interceptor: the hook that
// runs at every ORM unit-of-work boundary, decides whether
// the pending change set touches more than one shard, and — only when
// it does — promotes the save into a coordinator-driven cross-shard
// transaction instead of letting the ORM's default single-connection
// save path run.
package interceptor

import (
	"context"
	"fmt"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
	"github.com/astahiam/dtde/internal/registry"
	"github.com/astahiam/dtde/internal/router"
	"github.com/astahiam/dtde/internal/shardctx"
	"github.com/astahiam/dtde/internal/txn"
)

// ChangeTracker is the ORM's pending-write surface, consumed as an
// external collaborator.
type ChangeTracker interface {
	Entries() []entities.ChangeEntry
	Clear()
}

// Outcome reports what Save decided and, for the implicit path, how
// many entries were written.
type Outcome struct {
	// Promoted is true when the change set spanned more than one
	// shard and the interceptor drove (or joined) a cross-shard
	// transaction instead of leaving the default save path to run.
	Promoted bool
	// Count is the number of entries the interceptor handled; zero
	// when Promoted is false, since the default save path owns those.
	Count int
	// TransactionID is set when Promoted is true and an explicit
	// ambient transaction is driving commit/rollback itself (the
	// caller must not commit again — that is the session's job).
	TransactionID string
	// AmbientDriven is true when an already-active coordinator
	// transaction absorbed the entries rather than the interceptor
	// beginning and committing its own.
	AmbientDriven bool
}

// Interceptor groups a pending change set by target shard and, when it
// spans more than one, drives it through the transaction coordinator.
type Interceptor struct {
	reg     *registry.Registry
	rt      *router.Router
	coord   *txn.Coordinator
	factory *shardctx.Factory
	bus     *events.Bus
	apply   txn.Applier
}

// New builds an Interceptor. apply is the ORM-supplied function that
// turns one queued PendingOp into SQL against an open shard
// transaction; it is the only piece of domain logic the engine itself
// cannot supply.
func New(reg *registry.Registry, rt *router.Router, coord *txn.Coordinator, factory *shardctx.Factory, bus *events.Bus, apply txn.Applier) *Interceptor {
	return &Interceptor{reg: reg, rt: rt, coord: coord, factory: factory, bus: bus, apply: apply}
}

// Save groups the tracker's pending entries by resolved shard and
// either lets a single-shard save pass through untouched or promotes a
// cross-shard save into a coordinator-driven transaction.
// explicitTransactionOpen tells the interceptor whether the
// application has already started its own transaction scope at the
// ORM level (the session package sets this); it governs whether a
// cross-shard write can be promoted automatically or must instead
// join the caller's already-open transaction.
func (ic *Interceptor) Save(ctx context.Context, tracker ChangeTracker, explicitTransactionOpen bool) (Outcome, error) {
	entries := tracker.Entries()
	if len(entries) == 0 {
		return Outcome{}, nil
	}

	groups, err := ic.groupByShard(entries)
	if err != nil {
		return Outcome{}, err
	}

	distinctNonDefault := 0
	for shardID := range groups {
		if shardID != entities.DefaultShardGroup {
			distinctNonDefault++
		}
	}
	spansMultipleShards := distinctNonDefault > 1 || (distinctNonDefault >= 1 && len(groups[entities.DefaultShardGroup]) > 0)

	if !spansMultipleShards {
		return Outcome{}, nil
	}

	if ambient, ok := txn.FromContext(ctx); ok {
		if err := ic.enqueue(ambient, groups); err != nil {
			return Outcome{}, err
		}
		tracker.Clear()
		ic.publish(events.SaveAutoPromoted, ambient.ID(), len(entries), distinctNonDefault)
		return Outcome{Promoted: true, Count: len(entries), TransactionID: ambient.ID(), AmbientDriven: true}, nil
	}

	if explicitTransactionOpen {
		ic.publish(events.SaveWithoutCoordinator, "", len(entries), distinctNonDefault)
		return Outcome{}, nil
	}

	t, txCtx, err := ic.coord.Begin(ctx, entities.DefaultTransactionOptions())
	if err != nil {
		return Outcome{}, err
	}
	defer ic.coord.Cleanup(t.ID())

	if err := ic.enqueue(t, groups); err != nil {
		_ = t.Rollback(txCtx)
		return Outcome{}, err
	}

	if err := t.Prepare(txCtx); err != nil {
		return Outcome{}, err
	}
	if err := t.Commit(txCtx); err != nil {
		return Outcome{}, err
	}

	tracker.Clear()
	ic.publish(events.SaveAutoPromoted, t.ID(), len(entries), distinctNonDefault)
	return Outcome{Promoted: true, Count: len(entries)}, nil
}

func (ic *Interceptor) groupByShard(entries []entities.ChangeEntry) (map[string][]entities.ChangeEntry, error) {
	groups := make(map[string][]entities.ChangeEntry)
	for _, e := range entries {
		if _, configured := ic.reg.EntityMetadata(e.EntityType); !configured {
			groups[entities.DefaultShardGroup] = append(groups[entities.DefaultShardGroup], e)
			continue
		}
		shardID, err := ic.rt.TargetShard(e.EntityType, e.Entity)
		if err != nil {
			return nil, err
		}
		groups[shardID] = append(groups[shardID], e)
	}
	return groups, nil
}

func (ic *Interceptor) enqueue(t *txn.Transaction, groups map[string][]entities.ChangeEntry) error {
	for shardID, group := range groups {
		resolved := shardID
		if resolved == entities.DefaultShardGroup {
			d, ok := ic.reg.DefaultShard()
			if !ok {
				return fmt.Errorf("interceptor: no default shard configured for unrouted entities")
			}
			resolved = d.ShardID
		}

		handle, err := ic.factory.Open(context.Background(), resolved)
		if err != nil {
			return err
		}
		participant, err := t.Enlist(resolved, handle, ic.apply)
		if err != nil {
			return err
		}
		for _, e := range group {
			op := entities.PendingOp{Kind: changeStateToOpKind(e.State), Entity: e.Entity}
			if err := participant.Enlist(op); err != nil {
				return err
			}
		}
	}
	return nil
}

func changeStateToOpKind(s entities.ChangeState) entities.PendingOpKind {
	switch s {
	case entities.ChangeAdded:
		return entities.PendingAdd
	case entities.ChangeModified:
		return entities.PendingUpdate
	case entities.ChangeDeleted:
		return entities.PendingRemove
	default:
		return entities.PendingAdd
	}
}

func (ic *Interceptor) publish(kind events.Kind, txID string, count, shardCount int) {
	if ic.bus == nil {
		return
	}
	ic.bus.Publish(events.Event{
		Kind:          kind,
		TransactionID: txID,
		Message:       "save interceptor decision",
		Fields:        map[string]any{"entry_count": count, "shard_count": shardCount},
	})
}
