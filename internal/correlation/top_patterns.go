package correlation

import "sort"

// topPatterns ranks the window's tracked keys by event count, descending,
// breaking ties by key name for determinism. Mirrors the group-then-sort
// shape of a frequency-ranking helper: bucket by key, then order by impact.
//
// Example:
//
//	counts := map[string]int{"host:DC-01": 40, "user:alice": 12}
//	topPatterns(counts, 1) // → [{Key: "host:DC-01", Count: 40}]
func topPatterns(counts map[string]int, limit int) []PatternCount {
	if len(counts) == 0 {
		return nil
	}

	patterns := make([]PatternCount, 0, len(counts))

	for key, count := range counts {
		patterns = append(patterns, PatternCount{Key: key, Count: count})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}

		return patterns[i].Key < patterns[j].Key
	})

	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}

	return patterns
}
