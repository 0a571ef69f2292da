package sharding

import (
	"fmt"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
)

// rowCountStrategy routes every write to the newest shard known to the
// registry, failing closed with NoWritableShard once that shard's row
// count (as reported by RowCounter) reaches MaxRowsPerShard rather than
// mutating the registry itself — adding a shard is a configuration
// change, not something routing performs implicitly. The caller learns
// about the need for a new shard through the ShardNeeded event.
type rowCountStrategy struct {
	cfg        *entities.RowCountConfig
	entityType string
	bus        *events.Bus

	// knownShards lists shard ids from newest to oldest; the strategy
	// itself does not discover new shards, it is handed the current
	// list at construction via SetShards.
	knownShards []string
}

// SetShards supplies this strategy's shard universe in registration
// order (oldest first, matching registry.Registry.ShardIDs) and
// reverses it to the newest-first order Route/Candidates need; called
// once after Strategy construction since RowCountConfig carries no
// shard list of its own (unlike Range/Date/Manual, whose configs are
// self-contained).
func (s *rowCountStrategy) SetShards(oldestFirst []string) {
	s.knownShards = make([]string, len(oldestFirst))
	for i, id := range oldestFirst {
		s.knownShards[len(oldestFirst)-1-i] = id
	}
}

func (s *rowCountStrategy) newestWritable() (string, error) {
	if len(s.knownShards) == 0 {
		return "", &entities.NoWritableShard{EntityType: s.entityType}
	}
	newest := s.knownShards[0]
	if s.cfg.RowCounter == nil {
		return newest, nil
	}
	count, err := s.cfg.RowCounter(newest)
	if err != nil {
		return "", fmt.Errorf("row-count strategy: counting rows on shard %s: %w", newest, err)
	}
	if count < s.cfg.MaxRowsPerShard {
		return newest, nil
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Kind:       events.ShardNeeded,
			ShardID:    newest,
			EntityType: s.entityType,
			Message:    fmt.Sprintf("shard %s reached %d rows (max %d); provision a new shard", newest, count, s.cfg.MaxRowsPerShard),
		})
	}
	return "", &entities.NoWritableShard{EntityType: s.entityType}
}

func (s *rowCountStrategy) Route(_ any) (string, error) {
	return s.newestWritable()
}

func (s *rowCountStrategy) Candidates(_ entities.PredicateSet, _ any) ([]string, error) {
	out := make([]string, len(s.knownShards))
	copy(out, s.knownShards)
	return out, nil
}
