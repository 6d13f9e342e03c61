// Package correlation maintains a sliding time-window of recent
// SecurityEvents and detects brute-force, lateral-movement, temporal-burst,
// and privilege-escalation-chain patterns across them.
package correlation

import (
	"time"

	"github.com/mlidstrom/castellan/internal/event"
)

// RuleName identifies which correlation rule produced a match.
type RuleName string

const (
	RuleBruteForce      RuleName = "brute_force"
	RuleLateralMovement RuleName = "lateral_movement"
	RuleTemporalBurst   RuleName = "temporal_burst"
	RuleAttackChain     RuleName = "attack_chain"
)

// rulePriority breaks ties among equally-confident matches: brute-force >
// chain > lateral > burst.
var rulePriority = map[RuleName]int{
	RuleBruteForce:      4,
	RuleAttackChain:     3,
	RuleLateralMovement: 2,
	RuleTemporalBurst:   1,
}

// Match is one rule's detection result.
//
// Fields:
//   - Rule: which rule fired
//   - Confidence: the rule's own confidence score in [0,1]
//   - MitreTechniques: ATT&CK technique IDs associated with this rule
//   - Host, User, DestAddress: the correlation key components the match was found on
//   - MatchedEvents: the LogEvents that contributed to the match, timestamp-ascending
type Match struct {
	Rule            RuleName
	Confidence      float64
	MitreTechniques []string
	Host            string
	User            string
	DestAddress     string
	MatchedEvents   []event.LogEvent
}

// Result is what AnalyzeEvent returns: whether any rule fired, the
// highest-confidence ("primary") match, ties broken by rule priority,
// every match that fired, and the
// scalar scores the fusion engine consumes.
type Result struct {
	HasCorrelation  bool
	ConfidenceScore float64
	MatchedRules    []RuleName
	Primary         *Match
	BurstScore      float64
	AnomalyScore    float64
}

// Chain is a detected ordered attack-chain sequence.
type Chain struct {
	Host  string
	User  string
	Steps []event.LogEvent
	Rule  RuleName
}

// Statistics summarizes the window's current state for observability.
type Statistics struct {
	TrackedKeys int
	TotalEvents int
	TopPatterns []PatternCount
}

// PatternCount is one entry in Statistics.TopPatterns: a correlation key
// and how many events the window currently holds for it.
type PatternCount struct {
	Key   string
	Count int
}

// FilterMatches returns the subset of matches produced by rule. Mirrors the
// filter-by-criteria helper pattern used elsewhere for ad hoc inspection in
// tests and diagnostics.
func FilterMatches(matches []Match, rule RuleName) []Match {
	var filtered []Match

	for _, m := range matches {
		if m.Rule == rule {
			filtered = append(filtered, m)
		}
	}

	return filtered
}

// primaryMatch picks the highest-confidence match, tie-broken by rule
// priority, from a set of fired rules.
func primaryMatch(matches []Match) *Match {
	if len(matches) == 0 {
		return nil
	}

	best := matches[0]

	for _, m := range matches[1:] {
		if m.Confidence > best.Confidence ||
			(m.Confidence == best.Confidence && rulePriority[m.Rule] > rulePriority[best.Rule]) {
			best = m
		}
	}

	return &best
}

// withinWindow reports whether t falls within window of reference,
// reference being the more recent timestamp.
func withinWindow(reference, t time.Time, window time.Duration) bool {
	diff := reference.Sub(t)

	return diff >= 0 && diff <= window
}
