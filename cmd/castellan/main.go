// Package main provides the Castellan security event correlation service.
//
// Castellan ingests Windows event logs, enriches and classifies them, runs
// sliding-window correlation, and fuses the results into a persisted stream
// of SecurityEvents.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlidstrom/castellan/internal/collector"
	"github.com/mlidstrom/castellan/internal/config"
	"github.com/mlidstrom/castellan/internal/correlation"
	"github.com/mlidstrom/castellan/internal/embedding"
	"github.com/mlidstrom/castellan/internal/enrichment"
	"github.com/mlidstrom/castellan/internal/eventstore"
	"github.com/mlidstrom/castellan/internal/ignore"
	"github.com/mlidstrom/castellan/internal/llmclient"
	"github.com/mlidstrom/castellan/internal/pipeline"
	"github.com/mlidstrom/castellan/internal/telemetry"
	"github.com/mlidstrom/castellan/internal/vectorstore"
	"github.com/redis/go-redis/v9"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "castellan"
)

const mergeBufferSize = 256

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	cfg := config.LoadPipelineConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	logger.Info("starting castellan service",
		slog.String("service", name),
		slog.String("version", version),
	)

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := collectorsFromEnv(logger)

	if err := orch.Start(ctx, mergeBufferSize, sources...); err != nil {
		logger.Error("failed to start pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("castellan pipeline running")

	<-ctx.Done()

	logger.Info("shutdown signal received, draining pipeline", slog.Duration("drain_timeout", cfg.DrainTimeout))
	orch.Stop(cfg.DrainTimeout)

	logger.Info("castellan service stopped")
}

func buildOrchestrator(cfg config.PipelineConfig, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	meter, err := telemetry.NewMeter()
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	cache := enrichment.NewRedisCache(redisClient, "")

	enricher := enrichment.New(
		enrichment.NewStaticProvider(nil),
		cache,
		enrichment.WithLogger(logger),
	)

	ignoreCfg, err := ignore.LoadConfig(cfg.IgnorePatternsPath)
	if err != nil {
		return nil, err
	}

	embedder := embedding.WithRetry(
		embedding.NewDeterministicEmbedder(embedding.DefaultDimension, "castellan-v1"),
		embedding.DefaultRetryConfig(),
		logger,
	)

	llmCfg := llmclient.Config{
		Endpoint:       cfg.LLMEndpoint,
		RequestTimeout: llmclient.DefaultRequestTimeout,
		RatePerSecond:  10,
		Burst:          10,
	}

	deps := pipeline.Dependencies{
		Embedder:    embedder,
		VectorStore: vectorstore.NewInMemoryStore(),
		LLMClient:   llmclient.NewHTTPClient(llmCfg, nil),
		Enricher:    enricher,
		Correlation: correlation.NewEngine(correlation.Config{
			EventHistoryRetention: time.Duration(cfg.EventHistoryRetentionMinutes) * time.Minute,
			MaxEventsPerKey:       cfg.MaxEventsPerCorrelationKey,
		}.ApplyDefaults()),
		Ignore:      ignore.New(ignoreCfg.IgnorePatterns),
		EventStore:  eventstore.NewInMemoryStore(),
		Meter:       meter,
		Logger:      logger,
	}

	snap := config.NewSnapshot(cfg)

	return pipeline.New(snap, deps), nil
}

// collectorsFromEnv returns the live collector set. Castellan ships without
// a concrete Windows event-log transport wired by default; operators
// register one here (e.g. a Kafka-backed collector.Collector) per their
// deployment.
func collectorsFromEnv(logger *slog.Logger) []collector.Collector {
	logger.Warn("no live collectors configured, pipeline will observe only historical/backfill sources if any are added")

	return nil
}
