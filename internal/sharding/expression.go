package sharding

import "github.com/astahiam/dtde/internal/entities"

// expressionStrategy defers routing entirely to a user-supplied
// closure — the escape hatch for routing logic too entity-specific to
// express through the other seven config shapes.
type expressionStrategy struct {
	cfg *entities.ExpressionConfig

	// allShards is the conservative fallback for Candidates when
	// CandidateHint is absent or declines to narrow; populated by
	// router.strategyFor via SetShards since ExpressionConfig carries no
	// shard list of its own.
	allShards []string
}

// SetShards supplies the full shard id list this strategy falls back
// to for unhinted reads.
func (s *expressionStrategy) SetShards(shardIDs []string) {
	s.allShards = shardIDs
}

func (s *expressionStrategy) Route(entity any) (string, error) {
	if s.cfg == nil || s.cfg.Route == nil {
		return "", &entities.NotRoutable{Reason: "expression strategy missing Route function"}
	}
	return s.cfg.Route(entity)
}

// Candidates returns CandidateHint's narrowed set when the config
// supplies one; otherwise reads are conservative and must fan out to
// every shard, since an arbitrary closure gives the engine no way to
// reason about which shards a predicate set could match.
func (s *expressionStrategy) Candidates(predicates entities.PredicateSet, _ any) ([]string, error) {
	if s.cfg != nil && s.cfg.CandidateHint != nil {
		if shardIDs, ok := s.cfg.CandidateHint(predicates); ok {
			return shardIDs, nil
		}
	}
	out := make([]string, len(s.allShards))
	copy(out, s.allShards)
	return out, nil
}
