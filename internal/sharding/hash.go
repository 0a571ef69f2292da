package sharding

import (
	"fmt"
	"hash/crc32"

	"github.com/astahiam/dtde/internal/entities"
)

// hashStrategy routes by CRC32 of the key, modulo a fixed shard
// count — the exact hash family internal/database/shard_manager.go
// uses for GetShardByID (crc32.ChecksumIEEE of the entity's UUID
// bytes), generalized to hash an arbitrary selector value instead of
// only a UUID, and to a configurable shard-id list instead of the
// teacher's implicit "shard index == database suffix".
type hashStrategy struct {
	cfg *entities.HashConfig
}

func (s *hashStrategy) bucket(value any) int {
	h := crc32.ChecksumIEEE([]byte(normalizeKey(value)))
	return int(h) % s.cfg.ShardCount
}

func (s *hashStrategy) shardIDFor(bucket int) string {
	if len(s.cfg.ShardIDs) == s.cfg.ShardCount {
		return s.cfg.ShardIDs[bucket]
	}
	return fmt.Sprintf("%d", bucket)
}

func (s *hashStrategy) Route(entity any) (string, error) {
	if s.cfg == nil || s.cfg.Selector == nil || s.cfg.ShardCount <= 0 {
		return "", &entities.NotRoutable{Reason: "hash strategy missing selector or shard count"}
	}
	value, err := s.cfg.Selector(entity)
	if err != nil {
		return "", &entities.NotRoutable{Reason: err.Error()}
	}
	if value == nil || normalizeKey(value) == "" {
		return "", &entities.NotRoutable{Reason: "hash key " + s.cfg.KeyProperty + " is empty"}
	}
	return s.shardIDFor(s.bucket(value)), nil
}

func (s *hashStrategy) Candidates(predicates entities.PredicateSet, _ any) ([]string, error) {
	if value, ok := predicates.Equals[s.cfg.KeyProperty]; ok {
		return []string{s.shardIDFor(s.bucket(value))}, nil
	}
	return s.allShards(), nil
}

func (s *hashStrategy) allShards() []string {
	out := make([]string, s.cfg.ShardCount)
	for i := 0; i < s.cfg.ShardCount; i++ {
		out[i] = s.shardIDFor(i)
	}
	return out
}
