package correlation

import (
	"time"

	"github.com/mlidstrom/castellan/internal/event"
)

// bruteForceRule matches >= cfg.BruteForceThreshold AuthenticationFailure
// events within cfg.BruteForceWindow of now, boosted if an
// AuthenticationSuccess follows within the same window.
func bruteForceRule(events []event.SecurityEvent, now time.Time, cfg Config) *Match {
	var failures []event.SecurityEvent

	successAfter := false

	for _, evt := range events {
		if !withinWindow(now, evt.LogEvent.Timestamp, cfg.BruteForceWindow) {
			continue
		}

		switch evt.EventType {
		case event.EventTypeAuthenticationFailure:
			failures = append(failures, evt)
		case event.EventTypeAuthenticationSuccess:
			if len(failures) > 0 {
				successAfter = true
			}
		}
	}

	if len(failures) < cfg.BruteForceThreshold {
		return nil
	}

	confidence := minF(1, float64(len(failures))/float64(cfg.BruteForceThreshold))
	if successAfter {
		confidence = minF(1, confidence+0.2)
	}

	matched := make([]event.LogEvent, 0, len(failures))
	for _, evt := range failures {
		matched = append(matched, evt.LogEvent)
	}

	return &Match{
		Rule:            RuleBruteForce,
		Confidence:      confidence,
		MitreTechniques: []string{"T1110"},
		Host:            events[0].LogEvent.Host,
		User:            events[0].LogEvent.User,
		MatchedEvents:   matched,
	}
}

// lateralMovementRule matches when events from >= cfg.LateralMovementHosts
// distinct hosts landed on the same destination-address key within
// cfg.LateralMovementWindow.
func lateralMovementRule(events []event.SecurityEvent, now time.Time, cfg Config) *Match {
	hosts := make(map[string]bool)

	var matched []event.LogEvent

	for _, evt := range events {
		if !withinWindow(now, evt.LogEvent.Timestamp, cfg.LateralMovementWindow) {
			continue
		}

		hosts[evt.LogEvent.Host] = true
		matched = append(matched, evt.LogEvent)
	}

	if len(hosts) < cfg.LateralMovementHosts {
		return nil
	}

	confidence := minF(1, float64(len(hosts))/5)

	var destAddress string
	if len(events) > 0 && events[0].Enrichment != nil {
		destAddress = events[0].Enrichment.IP
	}

	return &Match{
		Rule:            RuleLateralMovement,
		Confidence:      confidence,
		MitreTechniques: []string{"T1021"},
		DestAddress:     destAddress,
		MatchedEvents:   matched,
	}
}

// temporalBurstRule matches >= cfg.BurstThreshold events of eventType on one
// host within cfg.BurstWindow.
func temporalBurstRule(events []event.SecurityEvent, eventType event.EventType, now time.Time, cfg Config) *Match {
	var matched []event.LogEvent

	for _, evt := range events {
		if evt.EventType != eventType {
			continue
		}

		if !withinWindow(now, evt.LogEvent.Timestamp, cfg.BurstWindow) {
			continue
		}

		matched = append(matched, evt.LogEvent)
	}

	if len(matched) < cfg.BurstThreshold {
		return nil
	}

	confidence := minF(1, float64(len(matched))/float64(2*cfg.BurstThreshold))

	host := ""
	if len(events) > 0 {
		host = events[0].LogEvent.Host
	}

	return &Match{
		Rule:          RuleTemporalBurst,
		Confidence:    confidence,
		Host:          host,
		MatchedEvents: matched,
	}
}

// attackChainRule matches an ordered AuthenticationSuccess ->
// PrivilegeEscalation -> ProcessCreation sequence on one (host, user),
// each step strictly after the previous, within cfg.AttackChainWindow.
func attackChainRule(events []event.SecurityEvent, now time.Time, cfg Config) *Match {
	steps := []event.EventType{
		event.EventTypeAuthenticationSuccess,
		event.EventTypePrivilegeEscalation,
		event.EventTypeProcessCreation,
	}

	var found []event.SecurityEvent

	stepIdx := 0

	var lastTS time.Time

	for _, evt := range events {
		if !withinWindow(now, evt.LogEvent.Timestamp, cfg.AttackChainWindow) {
			continue
		}

		if stepIdx >= len(steps) {
			break
		}

		if evt.EventType != steps[stepIdx] {
			continue
		}

		if stepIdx > 0 && !evt.LogEvent.Timestamp.After(lastTS) {
			continue
		}

		found = append(found, evt)
		lastTS = evt.LogEvent.Timestamp
		stepIdx++
	}

	missing := len(steps) - len(found)
	if missing > 0 {
		return nil
	}

	confidence := 0.8 + 0.1*float64(3-missing)
	if confidence > 1 {
		confidence = 1
	}

	matched := make([]event.LogEvent, 0, len(found))

	host, user := "", ""

	for _, evt := range found {
		matched = append(matched, evt.LogEvent)
		host = evt.LogEvent.Host
		user = evt.LogEvent.User
	}

	return &Match{
		Rule:            RuleAttackChain,
		Confidence:      confidence,
		MitreTechniques: []string{"T1078", "T1068"},
		Host:            host,
		User:            user,
		MatchedEvents:   matched,
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}

	return b
}
