package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/mlidstrom/castellan/internal/config"
	"github.com/mlidstrom/castellan/internal/detector"
	"github.com/mlidstrom/castellan/internal/event"
	"github.com/mlidstrom/castellan/internal/fusion"
	"github.com/mlidstrom/castellan/internal/llmclient"
	"github.com/mlidstrom/castellan/internal/vectorstore"
)

// processEvent drives one LogEvent through Stage A (enrichment + detection,
// parallel), Stage B (conditional embed/search/LLM), Stage C (correlation +
// fusion), Stage D (ignore-pattern and threshold filtering), and Stage E
// (persistence).
func (o *Orchestrator) processEvent(ctx context.Context, evt event.LogEvent, cfg config.PipelineConfig) {
	start := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, cfg.ParallelOperationTimeout)
	defer cancel()

	enrichData, det := o.runStageA(stageCtx, evt, cfg)

	llmVerdict, _ := o.runStageB(stageCtx, evt, det, cfg)

	provisional := provisionalSecurityEvent(evt, det, llmVerdict, enrichData)
	corr := o.deps.Correlation.AnalyzeEvent(provisional)

	se := fusion.Fuse(fusion.Inputs{
		LogEvent:      evt,
		Deterministic: det,
		LLM:           llmVerdict,
		Correlation:   corr,
		Enrichment:    enrichData,
	})

	if se == nil {
		o.recordDrop(ctx, "no_verdict")

		return
	}

	thresholds := fusion.Thresholds{
		MinCorrelationScore: cfg.MinCorrelationScoreThreshold,
		MinBurstScore:       cfg.MinBurstScoreThreshold,
		MinAnomalyScore:     cfg.MinAnomalyScoreThreshold,
	}

	if o.deps.Ignore.ShouldIgnore(*se) {
		o.recordDrop(ctx, "ignore_pattern")

		return
	}

	if fusion.ShouldDrop(se, thresholds) {
		o.recordDrop(ctx, "low_signal")

		return
	}

	result := o.deps.EventStore.Append(ctx, *se)
	if result.Error != nil {
		o.deps.Logger.Warn("event store append failed", "error", result.Error, "unique_id", evt.UniqueID)

		return
	}

	if o.deps.Meter != nil {
		o.deps.Meter.RecordPersisted(ctx)
		o.deps.Meter.RecordStageLatency(ctx, "event", float64(time.Since(start).Milliseconds()))
	}
}

func (o *Orchestrator) runStageA(ctx context.Context, evt event.LogEvent, cfg config.PipelineConfig) (*event.EnrichmentData, *detector.Verdict) {
	if !cfg.EnableParallelProcessing {
		return o.deps.Enricher.Enrich(ctx, evt), detector.Detect(evt)
	}

	var (
		enrichData *event.EnrichmentData
		det        *detector.Verdict
		wg         sync.WaitGroup
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		enrichData = o.deps.Enricher.Enrich(ctx, evt)
	}()

	go func() {
		defer wg.Done()

		det = detector.Detect(evt)
	}()

	wg.Wait()

	return enrichData, det
}

// runStageB embeds and analyzes evt only when the deterministic path left
// the verdict unresolved (nil or low risk); otherwise the LLM and vector
// search are skipped entirely.
func (o *Orchestrator) runStageB(
	ctx context.Context,
	evt event.LogEvent,
	det *detector.Verdict,
	cfg config.PipelineConfig,
) (*llmclient.Verdict, []vectorstore.Neighbor) {
	if det != nil && det.RiskLevel != event.RiskLow {
		return nil, nil
	}

	vec, err := o.deps.Embedder.Embed(ctx, evt.Message)
	if err != nil {
		o.deps.Logger.Warn("embedding failed, skipping vector stage", "error", err, "unique_id", evt.UniqueID)

		return nil, nil
	}

	var neighbors []vectorstore.Neighbor

	upsert := func(ctx context.Context) {
		if cfg.EnableVectorBatching {
			o.batch.Add(ctx, vectorstore.UpsertItem{Event: evt, Vector: vec})

			return
		}

		if err := o.deps.VectorStore.Upsert(ctx, evt, vec); err != nil {
			o.deps.Logger.Warn("vector upsert failed", "error", err, "unique_id", evt.UniqueID)
		}
	}

	if cfg.EnableParallelVectorOps {
		var wg sync.WaitGroup

		wg.Add(2)

		go func() {
			defer wg.Done()

			upsert(ctx)
		}()

		go func() {
			defer wg.Done()

			n, searchErr := o.deps.VectorStore.Search(ctx, vec, searchK)
			if searchErr != nil {
				o.deps.Logger.Warn("vector search failed", "error", searchErr, "unique_id", evt.UniqueID)

				return
			}

			neighbors = n
		}()

		wg.Wait()
	} else {
		upsert(ctx)

		n, searchErr := o.deps.VectorStore.Search(ctx, vec, searchK)
		if searchErr != nil {
			o.deps.Logger.Warn("vector search failed", "error", searchErr, "unique_id", evt.UniqueID)
		} else {
			neighbors = n
		}
	}

	verdict, err := o.deps.LLMClient.Analyze(ctx, evt, neighbors)
	if err != nil {
		o.deps.Logger.Warn("llm analyze failed", "error", err, "unique_id", evt.UniqueID)

		if o.deps.Meter != nil {
			o.deps.Meter.RecordLLMFailure(ctx)
		}

		return nil, neighbors
	}

	return verdict, neighbors
}

// provisionalSecurityEvent builds the minimal SecurityEvent the correlation
// engine needs to key its sliding windows, ahead of final fusion.
func provisionalSecurityEvent(
	evt event.LogEvent,
	det *detector.Verdict,
	llm *llmclient.Verdict,
	enrichment *event.EnrichmentData,
) event.SecurityEvent {
	eventType := event.EventTypeOther

	switch {
	case det != nil:
		eventType = det.EventType
	case llm != nil:
		eventType = llm.EventType
	}

	return event.SecurityEvent{
		LogEvent:   evt,
		EventType:  eventType,
		Enrichment: enrichment,
	}
}
