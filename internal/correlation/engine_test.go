package correlation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlidstrom/castellan/internal/correlation"
	"github.com/mlidstrom/castellan/internal/event"
)

func secEvent(host, user string, evtType event.EventType, ts time.Time) event.SecurityEvent {
	return event.SecurityEvent{
		LogEvent: event.LogEvent{
			Host: host, User: user, Timestamp: ts,
			UniqueID: ts.Format(time.RFC3339Nano) + host + user + string(evtType),
		},
		EventType: evtType,
	}
}

func TestBruteForce_TriggersAtThreshold(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var last correlation.Result

	for i := 0; i < 5; i++ {
		last = e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationFailure, base.Add(time.Duration(i)*time.Minute)))
	}

	require.True(t, last.HasCorrelation)
	require.NotNil(t, last.Primary)
	assert.Equal(t, correlation.RuleBruteForce, last.Primary.Rule)
	assert.Contains(t, last.MatchedRules, correlation.RuleBruteForce)
}

func TestBruteForce_BelowThresholdDoesNotTrigger(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var last correlation.Result

	for i := 0; i < 3; i++ {
		last = e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationFailure, base.Add(time.Duration(i)*time.Minute)))
	}

	assert.False(t, last.HasCorrelation)
}

func TestBruteForce_SuccessBoostsConfidence(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationFailure, base.Add(time.Duration(i)*time.Minute)))
	}

	last := e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationSuccess, base.Add(6*time.Minute)))

	require.NotNil(t, last.Primary)
	assert.Equal(t, 1.0, last.Primary.Confidence)
}

func TestLateralMovement_TriggersAcrossDistinctHosts(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	hosts := []string{"DC-01", "DC-02", "DC-03"}

	var last correlation.Result

	for i, h := range hosts {
		evt := secEvent(h, "", event.EventTypeNetworkConnection, base.Add(time.Duration(i)*time.Minute))
		evt.Enrichment = &event.EnrichmentData{IP: "203.0.113.9"}
		last = e.AnalyzeEvent(evt)
	}

	require.True(t, last.HasCorrelation)
	assert.Contains(t, last.MatchedRules, correlation.RuleLateralMovement)
}

func TestTemporalBurst_TriggersAtThreshold(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var last correlation.Result

	for i := 0; i < 10; i++ {
		last = e.AnalyzeEvent(secEvent("DC-01", "", event.EventTypeProcessCreation, base.Add(time.Duration(i)*10*time.Second)))
	}

	assert.Greater(t, last.BurstScore, 0.0)
}

func TestAttackChain_DetectsOrderedSequence(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationSuccess, base))
	e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypePrivilegeEscalation, base.Add(time.Minute)))
	last := e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeProcessCreation, base.Add(2*time.Minute)))

	require.True(t, last.HasCorrelation)
	assert.Contains(t, last.MatchedRules, correlation.RuleAttackChain)
}

func TestAttackChain_OutOfOrderDoesNotMatch(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeProcessCreation, base))
	e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypePrivilegeEscalation, base.Add(time.Minute)))
	last := e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationSuccess, base.Add(2*time.Minute)))

	assert.NotContains(t, last.MatchedRules, correlation.RuleAttackChain)
}

func TestAnalyzeBatch_IsDeterministic(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	events := make([]event.SecurityEvent, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, secEvent("DC-01", "alice", event.EventTypeAuthenticationFailure, base.Add(time.Duration(i)*time.Minute)))
	}

	r1 := e.AnalyzeBatch(events, 10*time.Minute)
	r2 := e.AnalyzeBatch(events, 10*time.Minute)

	require.Equal(t, len(r1), len(r2))
	assert.Equal(t, r1[len(r1)-1].HasCorrelation, r2[len(r2)-1].HasCorrelation)
	assert.Equal(t, r1[len(r1)-1].ConfidenceScore, r2[len(r2)-1].ConfidenceScore)
}

func TestDetectAttackChains_FindsChainAcrossBatch(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	events := []event.SecurityEvent{
		secEvent("DC-01", "alice", event.EventTypeAuthenticationSuccess, base),
		secEvent("DC-01", "alice", event.EventTypePrivilegeEscalation, base.Add(time.Minute)),
		secEvent("DC-01", "alice", event.EventTypeProcessCreation, base.Add(2*time.Minute)),
	}

	chains := e.DetectAttackChains(events, 30*time.Minute)
	require.Len(t, chains, 1)
	assert.Equal(t, "alice", chains[0].User)
	assert.Len(t, chains[0].Steps, 3)
}

func TestMaxEventsPerKey_CapsWindowSize(t *testing.T) {
	t.Parallel()

	cfg := correlation.DefaultConfig()
	cfg.MaxEventsPerKey = 5

	e := correlation.NewEngine(cfg)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		e.AnalyzeEvent(secEvent("DC-01", "", event.EventTypeProcessCreation, base.Add(time.Duration(i)*time.Second)))
	}

	stats := e.GetStatistics()

	for _, p := range stats.TopPatterns {
		if p.Key == "host:DC-01" {
			assert.LessOrEqual(t, p.Count, 5)
		}
	}
}

func TestGetStatistics_TracksKeysAndCounts(t *testing.T) {
	t.Parallel()

	e := correlation.NewEngine(correlation.DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	e.AnalyzeEvent(secEvent("DC-01", "alice", event.EventTypeAuthenticationFailure, base))
	e.AnalyzeEvent(secEvent("DC-02", "bob", event.EventTypeAuthenticationFailure, base))

	stats := e.GetStatistics()
	assert.Greater(t, stats.TrackedKeys, 0)
	assert.Greater(t, stats.TotalEvents, 0)
}

func TestFilterMatches(t *testing.T) {
	t.Parallel()

	matches := []correlation.Match{
		{Rule: correlation.RuleBruteForce},
		{Rule: correlation.RuleTemporalBurst},
		{Rule: correlation.RuleBruteForce},
	}

	filtered := correlation.FilterMatches(matches, correlation.RuleBruteForce)
	assert.Len(t, filtered, 2)
}
