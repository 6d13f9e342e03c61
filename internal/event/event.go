// Package event provides the immutable log-record and security-event domain
// models that flow through the Castellan pipeline.
//
// This is a pure domain model without JSON tags. Collaborators outside the
// core (the HTTP API, notification fan-out, SQL persistence) own their own
// wire types and map to/from these.
package event

import (
	"errors"
	"sort"
	"time"
)

type (
	// LogEvent is a single, immutable record ingested from a collector source.
	//
	// Equality is by UniqueID, not by value: two LogEvents with the same
	// UniqueID are the same event, even if every other field differs (a
	// collector replaying a record after a restart must reuse the original
	// UniqueID, not mint a new one).
	LogEvent struct {
		// Timestamp is the instant the record occurred, with offset.
		// Monotonic per UniqueID: a collector must never rewrite a timestamp
		// for a record it already emitted.
		Timestamp time.Time

		// Host is the originating machine name.
		Host string

		// Channel is the Windows event-log channel (e.g. "Security",
		// "Microsoft-Windows-PowerShell/Operational").
		Channel string

		// EventID is the Windows event ID (e.g. 4624, 4688).
		EventID int

		// Level is the log level/severity as reported by the source.
		Level string

		// User is the subject/account associated with the record, if any.
		User string

		// Message is the human-readable event text.
		Message string

		// Raw is the opaque original payload (XML/JSON as emitted by the
		// source), retained for audit and re-analysis.
		Raw string

		// UniqueID is an opaque, collector-assigned identifier. Collectors
		// MUST assign one; it is the sole key for equality and dedupe.
		UniqueID string
	}

	// EventType is the closed classification enum for a SecurityEvent.
	EventType string

	// RiskLevel is the closed risk enum for a SecurityEvent.
	RiskLevel string

	// SecurityEvent wraps a LogEvent with the output of enrichment,
	// classification, correlation, and fusion.
	//
	// SecurityEvent is created once by the detector or the LLM path and never
	// mutated afterward; fusion always returns a new value.
	SecurityEvent struct {
		LogEvent LogEvent

		// ID is stable for a given input: two fusion runs over the same
		// LogEvent and the same upstream signals must produce the same ID.
		ID string

		EventType EventType
		RiskLevel RiskLevel

		// Confidence is in [0, 100].
		Confidence int

		Summary string

		// MitreTechniques is an ordered set: no duplicates, insertion order
		// preserved.
		MitreTechniques []string

		// RecommendedActions is an ordered list (duplicates allowed, order
		// matters for display).
		RecommendedActions []string

		// Enrichment is the opaque structured IP metadata, or nil if no
		// address was resolved.
		Enrichment *EnrichmentData

		// CorrelationScore, BurstScore, AnomalyScore are each in [0, 1].
		CorrelationScore float64
		BurstScore       float64
		AnomalyScore     float64

		// Provenance flags. Internal fusion may set more than one; only
		// display logic should assume at most one is meaningful at a time.
		IsDeterministic    bool
		IsCorrelationBased bool
		IsEnhanced         bool
	}

	// EnrichmentData is the structured IP metadata attached by C7.
	EnrichmentData struct {
		IP              string
		Country         string
		CountryCode     string
		City            string
		Latitude        float64
		Longitude       float64
		ASN             int
		ASNOrganization string
		IsHighRisk      bool
		RiskFactors     []string
		IsPrivate       bool
	}
)

// Closed enum values for EventType.
const (
	EventTypeAuthenticationSuccess EventType = "AuthenticationSuccess"
	EventTypeAuthenticationFailure EventType = "AuthenticationFailure"
	EventTypePrivilegeEscalation   EventType = "PrivilegeEscalation"
	EventTypeProcessCreation       EventType = "ProcessCreation"
	EventTypeNetworkConnection     EventType = "NetworkConnection"
	EventTypeAccountManagement     EventType = "AccountManagement"
	EventTypePolicyChange          EventType = "PolicyChange"
	EventTypeServiceInstallation   EventType = "ServiceInstallation"
	EventTypeScheduledTask         EventType = "ScheduledTask"
	EventTypePowerShellExecution   EventType = "PowerShellExecution"
	EventTypeOther                 EventType = "Other"
)

// Closed enum values for RiskLevel, ordered low to critical.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskOrder gives each RiskLevel its rank for comparison and upgrade.
var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// ErrUnknownRiskLevel indicates a RiskLevel outside the closed enum.
var ErrUnknownRiskLevel = errors.New("unknown risk level")

// IsValid reports whether et is one of the closed EventType values.
func (et EventType) IsValid() bool {
	switch et {
	case EventTypeAuthenticationSuccess, EventTypeAuthenticationFailure, EventTypePrivilegeEscalation,
		EventTypeProcessCreation, EventTypeNetworkConnection, EventTypeAccountManagement,
		EventTypePolicyChange, EventTypeServiceInstallation, EventTypeScheduledTask,
		EventTypePowerShellExecution, EventTypeOther:
		return true
	default:
		return false
	}
}

// IsValid reports whether r is one of the closed RiskLevel values.
func (r RiskLevel) IsValid() bool {
	_, ok := riskOrder[r]
	return ok
}

// Rank returns r's position in the low→critical ordering, or -1 if r is not
// a valid RiskLevel.
func (r RiskLevel) Rank() int {
	rank, ok := riskOrder[r]
	if !ok {
		return -1
	}

	return rank
}

// Less reports whether r is strictly lower risk than other.
func (r RiskLevel) Less(other RiskLevel) bool {
	return r.Rank() < other.Rank()
}

// Upgrade returns the next risk level up from r, or r itself if r is already
// RiskCritical or invalid. Used by the fusion engine's risk-upgrade rule,
// which raises risk one level when the strongest correlation/burst/anomaly
// score clears 0.9.
func (r RiskLevel) Upgrade() RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	case RiskHigh, RiskCritical:
		return RiskCritical
	default:
		return r
	}
}

// Equal reports whether two LogEvents refer to the same record: equality is
// by unique_id alone.
func (e LogEvent) Equal(other LogEvent) bool {
	return e.UniqueID == other.UniqueID
}

// AddMitreTechnique appends technique to the event's ordered technique set if
// it is not already present.
func (s *SecurityEvent) AddMitreTechnique(technique string) {
	for _, t := range s.MitreTechniques {
		if t == technique {
			return
		}
	}

	s.MitreTechniques = append(s.MitreTechniques, technique)
}

// MergeMitreTechniques unions other into s.MitreTechniques, preserving s's
// existing order and appending any new techniques from other in their given
// order. Used by the fusion engine's "Enhanced" path, which layers an LLM
// verdict's techniques on top of the deterministic detector's.
func (s *SecurityEvent) MergeMitreTechniques(other []string) {
	for _, t := range other {
		s.AddMitreTechnique(t)
	}
}

// MergeRecommendedActions unions other into s.RecommendedActions, skipping
// actions already present (recommended actions are a list, but duplicate
// suppression keeps display output readable).
func (s *SecurityEvent) MergeRecommendedActions(other []string) {
	seen := make(map[string]struct{}, len(s.RecommendedActions))
	for _, a := range s.RecommendedActions {
		seen[a] = struct{}{}
	}

	for _, a := range other {
		if _, ok := seen[a]; ok {
			continue
		}

		seen[a] = struct{}{}
		s.RecommendedActions = append(s.RecommendedActions, a)
	}
}

// MaxScore returns the largest of CorrelationScore, BurstScore, and
// AnomalyScore. Used by the fusion engine's risk-upgrade rule.
func (s *SecurityEvent) MaxScore() float64 {
	m := s.CorrelationScore
	if s.BurstScore > m {
		m = s.BurstScore
	}

	if s.AnomalyScore > m {
		m = s.AnomalyScore
	}

	return m
}

// SortByTimestamp returns a copy of events sorted by Timestamp ascending,
// stable on UniqueID to keep ties deterministic.
func SortByTimestamp(events []LogEvent) []LogEvent {
	sorted := make([]LogEvent, len(events))
	copy(sorted, events)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].UniqueID < sorted[j].UniqueID
		}

		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	return sorted
}
