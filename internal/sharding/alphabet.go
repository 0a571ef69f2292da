package sharding

import (
	"strings"

	"github.com/astahiam/dtde/internal/entities"
)

type alphabetStrategy struct {
	cfg *entities.AlphabetConfig
}

func (s *alphabetStrategy) firstChar(value any) (byte, bool) {
	key := strings.ToUpper(strings.TrimSpace(normalizeKey(value)))
	if key == "" {
		return 0, false
	}
	return key[0], true
}

func (s *alphabetStrategy) shardFor(c byte) (string, bool) {
	for _, r := range s.cfg.Ranges {
		if c >= r.LowChar && c <= r.HighChar {
			return r.ShardID, true
		}
	}
	return "", false
}

func (s *alphabetStrategy) Route(entity any) (string, error) {
	if s.cfg == nil || s.cfg.Selector == nil {
		return "", &entities.NotRoutable{Reason: "alphabet strategy missing key selector"}
	}
	value, err := s.cfg.Selector(entity)
	if err != nil {
		return "", &entities.NotRoutable{Reason: err.Error()}
	}
	c, ok := s.firstChar(value)
	if !ok {
		if s.cfg.DefaultShard != "" {
			return s.cfg.DefaultShard, nil
		}
		return "", &entities.NotRoutable{Reason: "property " + s.cfg.KeyProperty + " is empty and no default shard is configured"}
	}
	if shardID, found := s.shardFor(c); found {
		return shardID, nil
	}
	if s.cfg.DefaultShard != "" {
		return s.cfg.DefaultShard, nil
	}
	return "", &entities.NotRoutable{Reason: "no shard mapped for leading character"}
}

func (s *alphabetStrategy) Candidates(predicates entities.PredicateSet, _ any) ([]string, error) {
	if value, ok := predicates.Equals[s.cfg.KeyProperty]; ok {
		c, hasChar := s.firstChar(value)
		if !hasChar {
			if s.cfg.DefaultShard != "" {
				return []string{s.cfg.DefaultShard}, nil
			}
			return nil, nil
		}
		if shardID, found := s.shardFor(c); found {
			return []string{shardID}, nil
		}
		if s.cfg.DefaultShard != "" {
			return []string{s.cfg.DefaultShard}, nil
		}
		return nil, nil
	}
	out := make([]string, 0, len(s.cfg.Ranges)+1)
	for _, r := range s.cfg.Ranges {
		out = append(out, r.ShardID)
	}
	if s.cfg.DefaultShard != "" {
		out = append(out, s.cfg.DefaultShard)
	}
	return out, nil
}
