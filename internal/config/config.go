// Package config provides functions for reading config settings from ENV.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = slog.LevelInfo

	defaultParallelOperationTimeout  = 30 * time.Second
	defaultSemaphoreTimeout          = 5 * time.Second
	defaultMaxConcurrentTasks        = 8
	defaultVectorBatchSize           = 16
	defaultVectorBatchTimeout        = 2 * time.Second
	defaultEventHistoryRetention     = 60 * time.Minute
	defaultMaxEventsPerKey           = 1000
	defaultDrainTimeout              = 10 * time.Second
	defaultBatchFlushCap             = 5 * time.Second
	defaultMinCorrelationScore       = 0.7
	defaultMinBurstScore             = 0.6
	defaultMinAnomalyScore           = 0.8
)

// Static validation errors.
var (
	ErrInvalidMaxConcurrentTasks = errors.New("max_concurrent_tasks must be positive")
	ErrInvalidSemaphoreTimeout   = errors.New("semaphore_timeout_ms must be positive")
	ErrInvalidVectorBatchSize    = errors.New("vector_batch_size must be positive")
	ErrInvalidRetentionMinutes   = errors.New("event_history_retention_minutes must be positive")
	ErrInvalidThreshold          = errors.New("score thresholds must be within [0,1]")
	ErrInvalidDrainTimeout       = errors.New("drain_timeout must be positive")
)

// PipelineConfig holds every tunable that governs how the orchestrator
// schedules, throttles, batches, and scores events.
type PipelineConfig struct {
	LogLevel slog.Level

	EnableParallelProcessing      bool
	ParallelOperationTimeout      time.Duration
	EnableParallelVectorOps       bool
	EnableSemaphoreThrottling     bool
	MaxConcurrentTasks            int
	SemaphoreTimeout              time.Duration
	SkipOnThrottleTimeout         bool
	EnableVectorBatching          bool
	VectorBatchSize               int
	VectorBatchTimeout            time.Duration
	EventHistoryRetentionMinutes  int
	MaxEventsPerCorrelationKey    int
	DrainTimeout                  time.Duration
	BatchFlushCap                 time.Duration

	MinCorrelationScoreThreshold float64
	MinBurstScoreThreshold       float64
	MinAnomalyScoreThreshold     float64

	IgnorePatternsPath string
	LLMEndpoint        string
	RedisAddr          string
}

// LoadPipelineConfig loads pipeline configuration from environment variables
// with sensible defaults, mirroring the defaults called out for the Castellan
// core scheduler, batcher, and threshold filter.
func LoadPipelineConfig() PipelineConfig {
	cfg := PipelineConfig{
		LogLevel: GetEnvLogLevel("CASTELLAN_LOG_LEVEL", DefaultLogLevel),

		EnableParallelProcessing:     GetEnvBool("CASTELLAN_ENABLE_PARALLEL_PROCESSING", true),
		ParallelOperationTimeout:     GetEnvDuration("CASTELLAN_PARALLEL_OPERATION_TIMEOUT", defaultParallelOperationTimeout),
		EnableParallelVectorOps:      GetEnvBool("CASTELLAN_ENABLE_PARALLEL_VECTOR_OPERATIONS", true),
		EnableSemaphoreThrottling:    GetEnvBool("CASTELLAN_ENABLE_SEMAPHORE_THROTTLING", true),
		MaxConcurrentTasks:           GetEnvInt("CASTELLAN_MAX_CONCURRENT_TASKS", defaultMaxConcurrentTasks),
		SemaphoreTimeout:             GetEnvDuration("CASTELLAN_SEMAPHORE_TIMEOUT", defaultSemaphoreTimeout),
		SkipOnThrottleTimeout:        GetEnvBool("CASTELLAN_SKIP_ON_THROTTLE_TIMEOUT", true),
		EnableVectorBatching:         GetEnvBool("CASTELLAN_ENABLE_VECTOR_BATCHING", true),
		VectorBatchSize:              GetEnvInt("CASTELLAN_VECTOR_BATCH_SIZE", defaultVectorBatchSize),
		VectorBatchTimeout:           GetEnvDuration("CASTELLAN_VECTOR_BATCH_TIMEOUT", defaultVectorBatchTimeout),
		EventHistoryRetentionMinutes: GetEnvInt("CASTELLAN_EVENT_HISTORY_RETENTION_MINUTES", int(defaultEventHistoryRetention.Minutes())),
		MaxEventsPerCorrelationKey:   GetEnvInt("CASTELLAN_MAX_EVENTS_PER_CORRELATION_KEY", defaultMaxEventsPerKey),
		DrainTimeout:                 GetEnvDuration("CASTELLAN_DRAIN_TIMEOUT", defaultDrainTimeout),
		BatchFlushCap:                GetEnvDuration("CASTELLAN_BATCH_FLUSH_CAP", defaultBatchFlushCap),

		MinCorrelationScoreThreshold: envFloat("CASTELLAN_MIN_CORRELATION_SCORE_THRESHOLD", defaultMinCorrelationScore),
		MinBurstScoreThreshold:       envFloat("CASTELLAN_MIN_BURST_SCORE_THRESHOLD", defaultMinBurstScore),
		MinAnomalyScoreThreshold:     envFloat("CASTELLAN_MIN_ANOMALY_SCORE_THRESHOLD", defaultMinAnomalyScore),

		IgnorePatternsPath: GetEnvStr("CASTELLAN_IGNORE_PATTERNS_PATH", "ignore_patterns.yaml"),
		LLMEndpoint:        GetEnvStr("CASTELLAN_LLM_ENDPOINT", "http://localhost:8081/analyze"),
		RedisAddr:          GetEnvStr("CASTELLAN_REDIS_ADDR", "localhost:6379"),
	}

	return cfg
}

// Validate reports every offending field rather than stopping at the first.
func (c PipelineConfig) Validate() error {
	var errs []error

	if c.MaxConcurrentTasks <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidMaxConcurrentTasks, c.MaxConcurrentTasks))
	}

	if c.SemaphoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidSemaphoreTimeout, c.SemaphoreTimeout))
	}

	if c.VectorBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidVectorBatchSize, c.VectorBatchSize))
	}

	if c.EventHistoryRetentionMinutes <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidRetentionMinutes, c.EventHistoryRetentionMinutes))
	}

	if c.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidDrainTimeout, c.DrainTimeout))
	}

	for _, t := range []float64{c.MinCorrelationScoreThreshold, c.MinBurstScoreThreshold, c.MinAnomalyScoreThreshold} {
		if t < 0 || t > 1 {
			errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidThreshold, t))
		}
	}

	return errors.Join(errs...)
}

func envFloat(key string, defaultValue float64) float64 {
	s := GetEnvStr(key, "")
	if s == "" {
		return defaultValue
	}

	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return defaultValue
	}

	return f
}
