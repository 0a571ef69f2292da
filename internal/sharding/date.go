package sharding

import (
	"time"

	"github.com/astahiam/dtde/internal/entities"
)

type dateStrategy struct {
	cfg *entities.DateConfig
}

func (s *dateStrategy) shardFor(t time.Time) (string, bool) {
	for _, e := range s.cfg.Shards {
		if e.Range.Contains(t) {
			return e.ShardID, true
		}
	}
	return "", false
}

func (s *dateStrategy) Route(entity any) (string, error) {
	if s.cfg == nil || s.cfg.Selector == nil {
		return "", &entities.NotRoutable{Reason: "date strategy missing date selector"}
	}
	value, err := s.cfg.Selector(entity)
	if err != nil {
		return "", &entities.NotRoutable{Reason: err.Error()}
	}
	t, ok := value.(time.Time)
	if !ok {
		return "", &entities.NotRoutable{Reason: "date selector did not return a time.Time"}
	}
	shardID, found := s.shardFor(t)
	if !found {
		return "", &entities.NotRoutable{Reason: "no shard covers date " + t.Format(time.RFC3339)}
	}
	return shardID, nil
}

// Candidates returns the shard whose DateRange contains temporalPoint
// (the "as of" filter) when one is given; otherwise, when the bounds
// apply to DateProperty, every shard whose DateRange intersects
// [LowerBound, UpperBound); otherwise every configured shard. The
// bounds are compared with each DateRange as given; they are not
// widened to the configured Interval.
func (s *dateStrategy) Candidates(predicates entities.PredicateSet, temporalPoint any) ([]string, error) {
	if t, ok := temporalPoint.(time.Time); ok {
		if shardID, found := s.shardFor(t); found {
			return []string{shardID}, nil
		}
		return nil, nil
	}

	if predicates.BoundProperty == s.cfg.DateProperty && (predicates.LowerBound != nil || predicates.UpperBound != nil) {
		var lower, upper time.Time
		hasLower, hasUpper := false, false
		if predicates.LowerBound != nil {
			if t, ok := (*predicates.LowerBound).(time.Time); ok {
				lower, hasLower = t, true
			}
		}
		if predicates.UpperBound != nil {
			if t, ok := (*predicates.UpperBound).(time.Time); ok {
				upper, hasUpper = t, true
			}
		}
		var out []string
		for _, e := range s.cfg.Shards {
			if dateWindowIntersects(e.Range, hasLower, lower, hasUpper, upper) {
				out = append(out, e.ShardID)
			}
		}
		return out, nil
	}

	out := make([]string, 0, len(s.cfg.Shards))
	for _, e := range s.cfg.Shards {
		out = append(out, e.ShardID)
	}
	return out, nil
}

func dateWindowIntersects(r entities.DateRange, hasLower bool, lower time.Time, hasUpper bool, upper time.Time) bool {
	rEnd := r.End
	if rEnd.IsZero() {
		rEnd = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if hasLower && !rEnd.After(lower) {
		return false
	}
	if hasUpper && !r.Start.Before(upper) {
		return false
	}
	return true
}
