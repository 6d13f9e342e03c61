package correlation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mlidstrom/castellan/internal/event"
)

// bucketDuration is the width of one rate-sampling bucket for anomaly
// scoring. One minute gives the EWMA baseline enough resolution to react
// within the default 5-10 minute rule windows without being noisy on a
// per-event basis.
const bucketDuration = time.Minute

// keyWindow is the sliding-window state for one correlation key (a host,
// a (host,user) pair, a user, or a destination address). Every field is
// guarded by mu; callers never hold more than one keyWindow's lock at a
// time, and never hold it across I/O (there is none here).
type keyWindow struct {
	mu     sync.Mutex
	events []event.SecurityEvent // ascending by LogEvent.Timestamp

	bucketStart time.Time
	bucketCount int
	ewmaMean    float64
	ewmaVar     float64
	samples     int
}

// Engine is the correlation engine's in-memory state: one keyWindow per
// tracked key, created lazily and never removed (an idle key simply empties
// via retention eviction).
type Engine struct {
	cfg   Config
	mu    sync.RWMutex
	keys  map[string]*keyWindow
	clock func() time.Time
}

// NewEngine returns an Engine configured with cfg.ApplyDefaults().
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg.ApplyDefaults(),
		keys:  make(map[string]*keyWindow),
		clock: time.Now,
	}
}

// SetClock overrides the engine's retention clock. Not for production use.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

func hostKey(host string) string         { return "host:" + host }
func userKey(user string) string         { return "user:" + user }
func hostUserKey(host, user string) string { return "hostuser:" + host + "|" + user }
func destKey(addr string) string         { return "dest:" + addr }

// windowFor returns the keyWindow for key, creating it under a brief write
// lock if absent. The common case (key already exists) only takes a read
// lock on the engine-level map.
func (e *Engine) windowFor(key string) *keyWindow {
	e.mu.RLock()
	w, ok := e.keys[key]
	e.mu.RUnlock()

	if ok {
		return w
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.keys[key]; ok {
		return w
	}

	w = &keyWindow{}
	e.keys[key] = w

	return w
}

// insert adds evt to the key's window in timestamp order, updates its anomaly-rate bucket,
// and evicts by retention and by cap. Returns a snapshot of the window's
// current events for rule evaluation.
func (e *Engine) insert(key string, evt event.SecurityEvent) []event.SecurityEvent {
	w := e.windowFor(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	ts := evt.LogEvent.Timestamp

	w.advanceBucket(ts, e.cfg.AnomalyEWMAAlpha)
	w.bucketCount++

	// Keep the window ascending by timestamp: evt goes after every event
	// with the same or an earlier timestamp.
	i := sort.Search(len(w.events), func(i int) bool { return w.events[i].LogEvent.Timestamp.After(ts) })
	w.events = append(w.events, event.SecurityEvent{})
	copy(w.events[i+1:], w.events[i:])
	w.events[i] = evt

	// Retention is measured back from the newest event in the window, or
	// from the clock when that event is dated in the future.
	ref := w.events[len(w.events)-1].LogEvent.Timestamp
	if now := e.clock(); now.Before(ref) {
		ref = now
	}

	cutoff := ref.Add(-e.cfg.EventHistoryRetention)

	kept := w.events[:0]

	for _, ev := range w.events {
		if !ev.LogEvent.Timestamp.Before(cutoff) {
			kept = append(kept, ev)
		}
	}

	w.events = kept

	if len(w.events) > e.cfg.MaxEventsPerKey {
		w.events = w.events[len(w.events)-e.cfg.MaxEventsPerKey:]
	}

	snapshot := make([]event.SecurityEvent, len(w.events))
	copy(snapshot, w.events)

	return snapshot
}

// advanceBucket finalizes the current rate bucket into the EWMA baseline
// once ts has moved past it, starting a fresh bucket. Caller holds w.mu.
func (w *keyWindow) advanceBucket(ts time.Time, alpha float64) {
	bucketOf := ts.Truncate(bucketDuration)

	if w.bucketStart.IsZero() {
		w.bucketStart = bucketOf

		return
	}

	if !bucketOf.After(w.bucketStart) {
		return
	}

	count := float64(w.bucketCount)

	if w.samples == 0 {
		w.ewmaMean = count
		w.ewmaVar = 0
	} else {
		delta := count - w.ewmaMean
		w.ewmaMean += alpha * delta
		w.ewmaVar = (1-alpha)*(w.ewmaVar+alpha*delta*delta)
	}

	w.samples++
	w.bucketStart = bucketOf
	w.bucketCount = 0
}

// anomalyScoreLocked computes the current bucket's z-score against the
// EWMA baseline, mapped through a logistic into [0,1]. Caller holds w.mu.
func (w *keyWindow) anomalyScoreLocked(minSamples int) float64 {
	if w.samples < minSamples {
		return 0
	}

	stddev := math.Sqrt(w.ewmaVar)
	if stddev < 1e-9 {
		stddev = 1e-9
	}

	z := (float64(w.bucketCount) - w.ewmaMean) / stddev

	return 1 / (1 + math.Exp(-z))
}

// AnalyzeEvent records evt into every key it belongs to and runs all
// correlation rules against the affected windows in parallel.
func (e *Engine) AnalyzeEvent(evt event.SecurityEvent) Result {
	le := evt.LogEvent

	hk := hostKey(le.Host)
	hostEvents := e.insert(hk, evt)

	var hostUserEvents []event.SecurityEvent

	huKey := ""
	if le.User != "" {
		huKey = hostUserKey(le.Host, le.User)
		hostUserEvents = e.insert(huKey, evt)
		// also tracked under the plain user key for future user-scoped lookups
		e.insert(userKey(le.User), evt)
	}

	dKey := ""
	if evt.Enrichment != nil && evt.Enrichment.IP != "" {
		dKey = destKey(evt.Enrichment.IP)
	}

	var destEvents []event.SecurityEvent
	if dKey != "" {
		destEvents = e.insert(dKey, evt)
	}

	now := le.Timestamp

	matches := make([]Match, 0, 4)

	var mu sync.Mutex

	var wg sync.WaitGroup

	record := func(m *Match) {
		if m == nil {
			return
		}

		mu.Lock()
		matches = append(matches, *m)
		mu.Unlock()
	}

	if huKey != "" {
		wg.Add(2)

		go func() {
			defer wg.Done()
			record(bruteForceRule(hostUserEvents, now, e.cfg))
		}()

		go func() {
			defer wg.Done()
			record(attackChainRule(hostUserEvents, now, e.cfg))
		}()
	}

	if dKey != "" {
		wg.Add(1)

		go func() {
			defer wg.Done()
			record(lateralMovementRule(destEvents, now, e.cfg))
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		record(temporalBurstRule(hostEvents, evt.EventType, now, e.cfg))
	}()

	wg.Wait()

	burstScore := 0.0

	for _, m := range matches {
		if m.Rule == RuleTemporalBurst {
			burstScore = m.Confidence
		}
	}

	w := e.windowFor(hk)
	w.mu.Lock()
	anomalyScore := w.anomalyScoreLocked(e.cfg.AnomalyBaselineSamples)
	w.mu.Unlock()

	primary := primaryMatch(matches)

	confidence := 0.0
	if primary != nil {
		confidence = primary.Confidence
	}

	ruleNames := make([]RuleName, 0, len(matches))
	for _, m := range matches {
		ruleNames = append(ruleNames, m.Rule)
	}

	return Result{
		HasCorrelation:  len(matches) > 0,
		ConfidenceScore: confidence,
		MatchedRules:    ruleNames,
		Primary:         primary,
		BurstScore:      burstScore,
		AnomalyScore:    anomalyScore,
	}
}

// AnalyzeBatch analyzes events in timestamp order against a fresh,
// isolated engine instance, for backfill and deterministic tests. window,
// if positive, overrides every rule's default window.
func (e *Engine) AnalyzeBatch(events []event.SecurityEvent, window time.Duration) []Result {
	cfg := e.cfg

	if window > 0 {
		cfg.BruteForceWindow = window
		cfg.LateralMovementWindow = window
		cfg.BurstWindow = window
		cfg.AttackChainWindow = window
	}

	tmp := NewEngine(cfg)
	tmp.clock = e.clock

	sorted := make([]event.SecurityEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LogEvent.Timestamp.Before(sorted[j].LogEvent.Timestamp)
	})

	results := make([]Result, len(sorted))
	for i, evt := range sorted {
		results[i] = tmp.AnalyzeEvent(evt)
	}

	return results
}

// DetectAttackChains runs the attack-chain rule over events grouped by
// (host, user), returning every chain found.
func (e *Engine) DetectAttackChains(events []event.SecurityEvent, window time.Duration) []Chain {
	if window <= 0 {
		window = e.cfg.AttackChainWindow
	}

	grouped := make(map[string][]event.SecurityEvent)

	for _, evt := range events {
		if evt.LogEvent.User == "" {
			continue
		}

		key := hostUserKey(evt.LogEvent.Host, evt.LogEvent.User)
		grouped[key] = append(grouped[key], evt)
	}

	var chains []Chain

	for _, group := range grouped {
		sorted := make([]event.SecurityEvent, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].LogEvent.Timestamp.Before(sorted[j].LogEvent.Timestamp)
		})

		if len(sorted) == 0 {
			continue
		}

		latest := sorted[len(sorted)-1].LogEvent.Timestamp

		cfg := e.cfg
		cfg.AttackChainWindow = window

		if m := attackChainRule(sorted, latest, cfg); m != nil {
			steps := make([]event.LogEvent, 0, len(m.MatchedEvents))
			steps = append(steps, m.MatchedEvents...)

			chains = append(chains, Chain{Host: m.Host, User: m.User, Steps: steps, Rule: m.Rule})
		}
	}

	return chains
}

// GetStatistics summarizes the engine's current window state.
func (e *Engine) GetStatistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int, len(e.keys))
	total := 0

	for key, w := range e.keys {
		w.mu.Lock()
		n := len(w.events)
		w.mu.Unlock()

		counts[key] = n
		total += n
	}

	return Statistics{
		TrackedKeys: len(e.keys),
		TotalEvents: total,
		TopPatterns: topPatterns(counts, 10),
	}
}
