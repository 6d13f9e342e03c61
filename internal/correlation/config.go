package correlation

import "time"

// Config tunes every rule's window and threshold. Zero-value fields fall
// back to DefaultConfig's values via ApplyDefaults.
type Config struct {
	// EventHistoryRetention is how long an event stays in the window.
	EventHistoryRetention time.Duration
	// MaxEventsPerKey caps each key's queue; oldest entries are evicted first.
	MaxEventsPerKey int

	BruteForceThreshold int
	BruteForceWindow    time.Duration

	LateralMovementHosts  int
	LateralMovementWindow time.Duration

	BurstThreshold int
	BurstWindow    time.Duration

	AttackChainWindow time.Duration

	// AnomalyBaselineSamples is the minimum number of samples needed before
	// anomaly_score is computed; below it, the score is 0.
	AnomalyBaselineSamples int
	// AnomalyEWMAAlpha is the EWMA smoothing factor for the rolling baseline.
	AnomalyEWMAAlpha float64
}

// DefaultConfig returns the correlation engine's default thresholds.
func DefaultConfig() Config {
	return Config{
		EventHistoryRetention:  60 * time.Minute,
		MaxEventsPerKey:        1000,
		BruteForceThreshold:    5,
		BruteForceWindow:       10 * time.Minute,
		LateralMovementHosts:   3,
		LateralMovementWindow:  30 * time.Minute,
		BurstThreshold:         10,
		BurstWindow:            5 * time.Minute,
		AttackChainWindow:      30 * time.Minute,
		AnomalyBaselineSamples: 20,
		AnomalyEWMAAlpha:       0.3,
	}
}

// ApplyDefaults fills zero-valued fields of c from DefaultConfig.
func (c Config) ApplyDefaults() Config {
	d := DefaultConfig()

	if c.EventHistoryRetention == 0 {
		c.EventHistoryRetention = d.EventHistoryRetention
	}

	if c.MaxEventsPerKey == 0 {
		c.MaxEventsPerKey = d.MaxEventsPerKey
	}

	if c.BruteForceThreshold == 0 {
		c.BruteForceThreshold = d.BruteForceThreshold
	}

	if c.BruteForceWindow == 0 {
		c.BruteForceWindow = d.BruteForceWindow
	}

	if c.LateralMovementHosts == 0 {
		c.LateralMovementHosts = d.LateralMovementHosts
	}

	if c.LateralMovementWindow == 0 {
		c.LateralMovementWindow = d.LateralMovementWindow
	}

	if c.BurstThreshold == 0 {
		c.BurstThreshold = d.BurstThreshold
	}

	if c.BurstWindow == 0 {
		c.BurstWindow = d.BurstWindow
	}

	if c.AttackChainWindow == 0 {
		c.AttackChainWindow = d.AttackChainWindow
	}

	if c.AnomalyBaselineSamples == 0 {
		c.AnomalyBaselineSamples = d.AnomalyBaselineSamples
	}

	if c.AnomalyEWMAAlpha == 0 {
		c.AnomalyEWMAAlpha = d.AnomalyEWMAAlpha
	}

	return c
}
