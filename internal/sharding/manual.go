package sharding

import "github.com/astahiam/dtde/internal/entities"

// manualStrategy evaluates each configured rule's predicate in
// declaration order against the entity. More than one match is
// resolved by preferring a Hot-tier shard, then the lowest Priority,
// over its rivals; only when ties remain unresolved (or lookup cannot
// resolve a shard's descriptor) is it a configuration error.
type manualStrategy struct {
	cfg    *entities.ManualConfig
	lookup ShardLookup
}

func (s *manualStrategy) matches(entity any) ([]entities.ManualRule, error) {
	var matched []entities.ManualRule
	for _, rule := range s.cfg.Rules {
		if rule.Predicate == nil {
			continue
		}
		ok, err := rule.Predicate(entity)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func (s *manualStrategy) Route(entity any) (string, error) {
	if s.cfg == nil {
		return "", &entities.NotRoutable{Reason: "manual strategy missing rules"}
	}
	matched, err := s.matches(entity)
	if err != nil {
		return "", err
	}
	if len(matched) == 0 {
		return "", &entities.NotRoutable{Reason: "no manual rule matched entity"}
	}

	var writable []entities.ManualRule
	for _, r := range matched {
		if r.Writable {
			writable = append(writable, r)
		}
	}
	if len(writable) == 0 {
		return "", &entities.NoWritableShard{}
	}
	if len(writable) == 1 {
		return writable[0].ShardID, nil
	}

	winner, ok := s.breakTie(writable)
	if !ok {
		ids := make([]string, len(writable))
		for i, r := range writable {
			ids[i] = r.ShardID
		}
		return "", &entities.MisconfiguredRouting{ShardIDs: ids}
	}
	return winner, nil
}

// breakTie resolves multiple simultaneously writable matches by
// preferring a Hot-tier shard, then the lowest Priority. It reports
// false when it cannot resolve every candidate's descriptor (no
// lookup configured, or an unregistered shard id) or when the
// preference still leaves more than one candidate tied.
func (s *manualStrategy) breakTie(candidates []entities.ManualRule) (string, bool) {
	if s.lookup == nil {
		return "", false
	}

	type scored struct {
		shardID  string
		hot      bool
		priority int
	}
	scoredCandidates := make([]scored, len(candidates))
	for i, r := range candidates {
		d, ok := s.lookup(r.ShardID)
		if !ok {
			return "", false
		}
		scoredCandidates[i] = scored{shardID: r.ShardID, hot: d.Tier == entities.TierHot, priority: d.Priority}
	}

	best := scoredCandidates[0]
	tied := 1
	for _, c := range scoredCandidates[1:] {
		switch {
		case c.hot && !best.hot:
			best, tied = c, 1
		case c.hot != best.hot:
			continue
		case c.priority < best.priority:
			best, tied = c, 1
		case c.priority == best.priority:
			tied++
		}
	}
	if tied > 1 {
		return "", false
	}
	return best.shardID, true
}

// Candidates cannot evaluate rule predicates against a predicate set
// (predicates describe bounds/equalities, rules expect a live entity),
// so reads conservatively return every configured shard.
func (s *manualStrategy) Candidates(_ entities.PredicateSet, _ any) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range s.cfg.Rules {
		if !seen[rule.ShardID] {
			seen[rule.ShardID] = true
			out = append(out, rule.ShardID)
		}
	}
	return out, nil
}
