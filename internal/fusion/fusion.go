// Package fusion combines deterministic, LLM, and correlation signals into
// one SecurityEvent verdict.
package fusion

import (
	"github.com/mlidstrom/castellan/internal/correlation"
	"github.com/mlidstrom/castellan/internal/detector"
	"github.com/mlidstrom/castellan/internal/event"
	"github.com/mlidstrom/castellan/internal/llmclient"
)

// Thresholds gates which low-signal events survive fusion, configured via
// the pipeline's min_*_score_threshold options.
type Thresholds struct {
	MinCorrelationScore float64
	MinBurstScore       float64
	MinAnomalyScore     float64
}

// Inputs bundles everything Fuse needs to produce a verdict for one event.
type Inputs struct {
	LogEvent      event.LogEvent
	Deterministic *detector.Verdict
	LLM           *llmclient.Verdict
	Correlation   correlation.Result
	Enrichment    *event.EnrichmentData
}

// Fuse applies the ordered fusion rules and returns the resulting
// SecurityEvent, or nil if every rule was exhausted without a base verdict
// (the event is dropped). Fuse is a pure function of its inputs: the same
// (deterministic, llm, correlation) always yields the same verdict.
func Fuse(in Inputs) *event.SecurityEvent {
	se := baseVerdict(in)
	if se == nil {
		return nil
	}

	se.LogEvent = in.LogEvent
	se.ID = event.DeriveID(in.LogEvent.UniqueID)
	se.Enrichment = in.Enrichment
	se.CorrelationScore = correlationScoreOf(in.Correlation)
	se.BurstScore = in.Correlation.BurstScore
	se.AnomalyScore = in.Correlation.AnomalyScore

	applyRiskUpgrade(se)

	se.Confidence = maxInt(se.Confidence, int(roundTo100(se.CorrelationScore)))

	return se
}

// baseVerdict applies fusion rules 1-4 in order; the first match wins.
func baseVerdict(in Inputs) *event.SecurityEvent {
	det := in.Deterministic
	llm := in.LLM
	corr := in.Correlation

	// Rule 1: deterministic high/critical risk wins outright.
	if det != nil && (det.RiskLevel == event.RiskHigh || det.RiskLevel == event.RiskCritical) {
		se := fromDeterministic(det)
		se.IsDeterministic = true

		return se
	}

	// Rule 2: a confident correlation match wins.
	if corr.HasCorrelation && corr.Primary != nil && corr.ConfidenceScore >= 0.7 {
		se := fromCorrelation(corr.Primary, corr.ConfidenceScore)
		se.IsCorrelationBased = true

		return se
	}

	// Rule 3: an LLM verdict wins, enhanced with the deterministic verdict
	// if one also fired.
	if llm != nil {
		se := fromLLM(llm)

		if det != nil {
			se.IsEnhanced = true
			se.MergeMitreTechniques(det.MitreTechniques)
			se.MergeRecommendedActions(det.RecommendedActions)
		}

		return se
	}

	// Rule 4: any deterministic verdict, regardless of risk.
	if det != nil {
		se := fromDeterministic(det)
		se.IsDeterministic = true

		return se
	}

	// Rule 5: nothing fired.
	return nil
}

func fromDeterministic(v *detector.Verdict) *event.SecurityEvent {
	return &event.SecurityEvent{
		EventType:          v.EventType,
		RiskLevel:          v.RiskLevel,
		Confidence:         v.Confidence,
		Summary:            v.Summary,
		MitreTechniques:    append([]string(nil), v.MitreTechniques...),
		RecommendedActions: append([]string(nil), v.RecommendedActions...),
	}
}

func fromLLM(v *llmclient.Verdict) *event.SecurityEvent {
	return &event.SecurityEvent{
		EventType:          v.EventType,
		RiskLevel:          v.RiskLevel,
		Confidence:         v.Confidence,
		Summary:            v.Summary,
		MitreTechniques:    append([]string(nil), v.MitreTechniques...),
		RecommendedActions: append([]string(nil), v.RecommendedActions...),
	}
}

func fromCorrelation(m *correlation.Match, confidence float64) *event.SecurityEvent {
	eventType := event.EventTypeOther

	switch m.Rule {
	case correlation.RuleBruteForce:
		eventType = event.EventTypeAuthenticationFailure
	case correlation.RuleLateralMovement:
		eventType = event.EventTypeNetworkConnection
	case correlation.RuleAttackChain:
		eventType = event.EventTypePrivilegeEscalation
	case correlation.RuleTemporalBurst:
		eventType = event.EventTypeOther
	}

	return &event.SecurityEvent{
		EventType:       eventType,
		RiskLevel:       riskFromConfidence(confidence),
		Confidence:      int(roundTo100(confidence)),
		Summary:         "correlation match: " + string(m.Rule),
		MitreTechniques: append([]string(nil), m.MitreTechniques...),
	}
}

func riskFromConfidence(confidence float64) event.RiskLevel {
	switch {
	case confidence >= 0.9:
		return event.RiskCritical
	case confidence >= 0.7:
		return event.RiskHigh
	default:
		return event.RiskMedium
	}
}

func correlationScoreOf(r correlation.Result) float64 {
	if !r.HasCorrelation {
		return 0
	}

	return r.ConfidenceScore
}

// applyRiskUpgrade raises risk one level if any of the three scores reach
// 0.9, per the fusion engine's risk-upgrade rule.
func applyRiskUpgrade(se *event.SecurityEvent) {
	if se.MaxScore() >= 0.9 {
		se.RiskLevel = se.RiskLevel.Upgrade()
	}
}

// ShouldDrop reports whether se should be dropped at Stage D because it is
// not deterministic/correlation-based/enhanced and every score is below
// its configured minimum threshold.
func ShouldDrop(se *event.SecurityEvent, t Thresholds) bool {
	if se.IsDeterministic || se.IsCorrelationBased || se.IsEnhanced {
		return false
	}

	return se.CorrelationScore < t.MinCorrelationScore &&
		se.BurstScore < t.MinBurstScore &&
		se.AnomalyScore < t.MinAnomalyScore
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

func roundTo100(v float64) float64 {
	return float64(int(v*100 + 0.5))
}
