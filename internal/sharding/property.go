package sharding

import (
	"fmt"
	"strings"

	"github.com/astahiam/dtde/internal/entities"
)

type propertyStrategy struct {
	cfg *entities.PropertyConfig
}

func (s *propertyStrategy) lookup(value any) (string, bool) {
	key := normalizeKey(value)
	for k, shardID := range s.cfg.ValueToShard {
		if strings.EqualFold(k, key) {
			return shardID, true
		}
	}
	return "", false
}

func normalizeKey(v any) string {
	return fmt.Sprintf("%v", v)
}

func (s *propertyStrategy) Route(entity any) (string, error) {
	if s.cfg == nil || s.cfg.Selector == nil {
		return "", &entities.NotRoutable{Reason: "property strategy missing key selector"}
	}
	value, err := s.cfg.Selector(entity)
	if err != nil {
		return "", &entities.NotRoutable{Reason: err.Error()}
	}
	if value == nil || normalizeKey(value) == "" {
		if s.cfg.DefaultShard != "" {
			return s.cfg.DefaultShard, nil
		}
		return "", &entities.NotRoutable{Reason: "property " + s.cfg.KeyProperty + " is empty and no default shard is configured"}
	}
	if shardID, ok := s.lookup(value); ok {
		return shardID, nil
	}
	if s.cfg.DefaultShard != "" {
		return s.cfg.DefaultShard, nil
	}
	return "", &entities.NotRoutable{Reason: fmt.Sprintf("no shard mapped for value %q", normalizeKey(value))}
}

func (s *propertyStrategy) Candidates(predicates entities.PredicateSet, _ any) ([]string, error) {
	if s.cfg == nil {
		return nil, nil
	}
	if value, ok := predicates.Equals[s.cfg.KeyProperty]; ok {
		if shardID, found := s.lookup(value); found {
			return []string{shardID}, nil
		}
		if s.cfg.DefaultShard != "" {
			return []string{s.cfg.DefaultShard}, nil
		}
		return nil, nil
	}
	return s.allMappedShards(), nil
}

func (s *propertyStrategy) allMappedShards() []string {
	seen := make(map[string]bool)
	var out []string
	for _, shardID := range s.cfg.ValueToShard {
		if !seen[shardID] {
			seen[shardID] = true
			out = append(out, shardID)
		}
	}
	if s.cfg.DefaultShard != "" && !seen[s.cfg.DefaultShard] {
		out = append(out, s.cfg.DefaultShard)
	}
	return out
}
