package sharding

import (
	"sort"
	"strconv"

	"github.com/astahiam/dtde/internal/entities"
)

type rangeStrategy struct {
	cfg *entities.RangeConfig
}

// compareKeys compares two shard-key string representations as
// numbers when both parse as float64, else lexicographically.
func compareKeys(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (s *rangeStrategy) entryFor(key string) (entities.RangeEntry, bool) {
	// Ties on a boundary default to the lower shard: sort by Low
	// ascending and stop at the first range whose High
	// is >= key, so a key equal to one range's High and the next
	// range's Low resolves to the earlier (lower) range.
	entries := make([]entities.RangeEntry, len(s.cfg.Ranges))
	copy(entries, s.cfg.Ranges)
	sort.Slice(entries, func(i, j int) bool {
		return compareKeys(entries[i].Range.Low, entries[j].Range.Low) < 0
	})
	for _, e := range entries {
		if compareKeys(key, e.Range.Low) >= 0 && compareKeys(key, e.Range.High) <= 0 {
			return e, true
		}
	}
	return entities.RangeEntry{}, false
}

func (s *rangeStrategy) Route(entity any) (string, error) {
	if s.cfg == nil || s.cfg.Selector == nil {
		return "", &entities.NotRoutable{Reason: "range strategy missing key selector"}
	}
	value, err := s.cfg.Selector(entity)
	if err != nil {
		return "", &entities.NotRoutable{Reason: err.Error()}
	}
	entry, ok := s.entryFor(normalizeKey(value))
	if !ok {
		return "", &entities.NotRoutable{Reason: "key out of configured ranges"}
	}
	return entry.ShardID, nil
}

func (s *rangeStrategy) Candidates(predicates entities.PredicateSet, _ any) ([]string, error) {
	if value, ok := predicates.Equals[s.cfg.KeyProperty]; ok {
		entry, found := s.entryFor(normalizeKey(value))
		if !found {
			return nil, nil
		}
		return []string{entry.ShardID}, nil
	}

	if predicates.BoundProperty == s.cfg.KeyProperty && (predicates.LowerBound != nil || predicates.UpperBound != nil) {
		var out []string
		for _, e := range s.cfg.Ranges {
			if rangeIntersects(e.Range, predicates.LowerBound, predicates.UpperBound) {
				out = append(out, e.ShardID)
			}
		}
		return out, nil
	}

	out := make([]string, 0, len(s.cfg.Ranges))
	for _, e := range s.cfg.Ranges {
		out = append(out, e.ShardID)
	}
	return out, nil
}

func rangeIntersects(r entities.KeyRange, lower, upper *any) bool {
	if lower != nil {
		lowStr := normalizeKey(*lower)
		if compareKeys(lowStr, r.High) > 0 {
			return false
		}
	}
	if upper != nil {
		highStr := normalizeKey(*upper)
		if compareKeys(highStr, r.Low) < 0 {
			return false
		}
	}
	return true
}
