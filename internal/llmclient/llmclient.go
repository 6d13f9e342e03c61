// Package llmclient produces a structured verdict for a LogEvent given its
// vector-store neighbors, backed by an HTTP JSON endpoint.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mlidstrom/castellan/internal/event"
	"github.com/mlidstrom/castellan/internal/vectorstore"
)

// ErrLLMUnavailable is returned on timeout, transport error, or malformed
// JSON. The orchestrator treats it as "no LLM contribution" and continues.
var ErrLLMUnavailable = errors.New("llmclient: unavailable")

// Verdict mirrors a SecurityEvent's descriptive fields, sans id and
// provenance flags, which fusion owns.
type Verdict struct {
	EventType          event.EventType `json:"event_type"`
	RiskLevel          event.RiskLevel `json:"risk_level"`
	Confidence         int             `json:"confidence"`
	Summary            string          `json:"summary"`
	MitreTechniques    []string        `json:"mitre_techniques"`
	RecommendedActions []string        `json:"recommended_actions"`
}

// Client analyzes an event in the context of its nearest vector-store
// neighbors and returns a structured verdict.
type Client interface {
	Analyze(ctx context.Context, evt event.LogEvent, neighbors []vectorstore.Neighbor) (*Verdict, error)
}

// Config configures an HTTPClient.
type Config struct {
	Endpoint       string
	RequestTimeout time.Duration
	// RatePerSecond and Burst bound outbound call rate; a zero RatePerSecond
	// disables limiting.
	RatePerSecond float64
	Burst         int
}

// DefaultRequestTimeout matches the enrichment provider's short-deadline
// posture: the orchestrator cannot let one slow call stall a pipeline stage.
const DefaultRequestTimeout = 5 * time.Second

// HTTPClient calls a JSON HTTP endpoint that returns a Verdict document.
type HTTPClient struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient returns an HTTPClient. A zero cfg.RequestTimeout uses
// DefaultRequestTimeout.
func NewHTTPClient(cfg Config, httpc *http.Client) *HTTPClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	if httpc == nil {
		httpc = http.DefaultClient
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}

		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &HTTPClient{cfg: cfg, httpc: httpc, limiter: limiter}
}

type analyzeRequest struct {
	Event     wireEvent   `json:"event"`
	Neighbors []wireEvent `json:"neighbors"`
}

type wireEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Channel   string    `json:"channel"`
	EventID   int       `json:"event_id"`
	Message   string    `json:"message"`
}

// Analyze implements Client. It enforces cfg.RequestTimeout regardless of
// the caller's own deadline and collapses every failure mode (rate-limit
// wait cancellation, transport error, non-2xx status, malformed JSON) into
// ErrLLMUnavailable.
func (c *HTTPClient) Analyze(ctx context.Context, evt event.LogEvent, neighbors []vectorstore.Neighbor) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}
	}

	reqBody := analyzeRequest{Event: toWireEvent(evt)}
	for _, n := range neighbors {
		reqBody.Neighbors = append(reqBody.Neighbors, toWireEvent(n.Event))
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrLLMUnavailable, resp.StatusCode)
	}

	var verdict Verdict
	if err := json.Unmarshal(body, &verdict); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrLLMUnavailable, err)
	}

	if !verdict.RiskLevel.IsValid() {
		return nil, fmt.Errorf("%w: invalid risk_level %q", ErrLLMUnavailable, verdict.RiskLevel)
	}

	return &verdict, nil
}

func toWireEvent(evt event.LogEvent) wireEvent {
	return wireEvent{
		Timestamp: evt.Timestamp,
		Host:      evt.Host,
		Channel:   evt.Channel,
		EventID:   evt.EventID,
		Message:   evt.Message,
	}
}
