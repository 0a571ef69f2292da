// Package query implements a parallel scatter-gather query executor:
// fan a read out across a shard's candidate set with bounded
// parallelism (a goroutine per shard, gated by a semaphore), fail fast
// and cancel the siblings on the first shard error, merge the per-shard
// results and sort them by an ordering, then apply skip/take.
package query

import (
	"context"
	"sort"
	"sync"

	"github.com/astahiam/dtde/internal/events"
)

// Fetch retrieves one shard's rows for a query. Implementations must
// respect ctx cancellation promptly, since a sibling shard's error
// cancels every still-running Fetch.
type Fetch func(ctx context.Context, shardID string) ([]any, error)

// Less reports whether a sorts before b under the query's requested
// ordering; used to sort the merged per-shard results.
type Less func(a, b any) bool

// Plan is one parallel scatter-gather query.
type Plan struct {
	EntityType     string
	ShardIDs       []string
	MaxParallel    int
	Fetch          Fetch
	OrderBy        Less
	Skip           int
	Take           int
	AggregateReduce func(rows []any) []any
}

// Executor runs Plans, publishing QueryPlanned/QueryShardCompleted
// events as it goes.
type Executor struct {
	bus *events.Bus
}

// New returns an Executor; bus may be nil.
func New(bus *events.Bus) *Executor {
	return &Executor{bus: bus}
}

func (e *Executor) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// Run executes plan: it fans Fetch out across plan.ShardIDs with at
// most plan.MaxParallel concurrent in flight, cancels every sibling as
// soon as one shard's Fetch returns an error (fail fast), merges the
// surviving per-shard slices by plan.OrderBy, optionally reduces them
// through AggregateReduce, and finally applies Skip/Take.
func (e *Executor) Run(ctx context.Context, plan Plan) ([]any, error) {
	if len(plan.ShardIDs) == 0 {
		return nil, nil
	}
	e.publish(events.Event{
		Kind:       events.QueryPlanned,
		EntityType: plan.EntityType,
		Message:    "fanning out across shards",
		Fields:     map[string]any{"shard_count": len(plan.ShardIDs)},
	})

	maxParallel := plan.MaxParallel
	if maxParallel <= 0 || maxParallel > len(plan.ShardIDs) {
		maxParallel = len(plan.ShardIDs)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, maxParallel)
	results := make([][]any, len(plan.ShardIDs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, shardID := range plan.ShardIDs {
		i, shardID := i, shardID
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			rows, err := plan.Fetch(runCtx, shardID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results[i] = rows
			e.publish(events.Event{
				Kind:       events.QueryShardCompleted,
				EntityType: plan.EntityType,
				ShardID:    shardID,
				Message:    "shard query completed",
				Fields:     map[string]any{"row_count": len(rows)},
			})
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	merged := mergeSorted(results, plan.OrderBy)
	if plan.AggregateReduce != nil {
		merged = plan.AggregateReduce(merged)
	}
	return paginate(merged, plan.Skip, plan.Take), nil
}

// mergeSorted concatenates per-shard result slices in shard order and,
// when less is non-nil, stable-sorts the combined slice by it, so the
// per-shard slices need not arrive pre-sorted. When less is nil the
// concatenation is returned as is (the caller has no ordering
// requirement).
func mergeSorted(results [][]any, less Less) []any {
	var total int
	for _, r := range results {
		total += len(r)
	}
	out := make([]any, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

func paginate(rows []any, skip, take int) []any {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(rows) {
		return []any{}
	}
	rows = rows[skip:]
	if take <= 0 || take >= len(rows) {
		return rows
	}
	return rows[:take]
}
