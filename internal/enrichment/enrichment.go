// Package enrichment maps IP addresses parsed from LogEvent messages to
// geo/ASN/risk metadata, with a TTL cache in front of the lookup provider.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mlidstrom/castellan/internal/event"
)

// ErrEnrichmentUnavailable is the transient-external error for a failed
// lookup. Enricher.Enrich never returns this to callers directly: an
// enrichment failure returns nil, not an error, so it never blocks
// the rest of the pipeline.
var ErrEnrichmentUnavailable = errors.New("enrichment: unavailable")

// DefaultDeadline bounds a single enrichment call end to end.
const DefaultDeadline = 2 * time.Second

// DefaultCacheTTL is how long a resolved address's metadata is cached.
const DefaultCacheTTL = 24 * time.Hour

// Provider resolves a single IP address to geo/ASN/risk metadata. It may
// return ErrEnrichmentUnavailable on transport failure.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*event.EnrichmentData, error)
}

// Cache stores and retrieves previously resolved EnrichmentData by address.
type Cache interface {
	Get(ctx context.Context, ip string) (*event.EnrichmentData, bool, error)
	Set(ctx context.Context, ip string, data *event.EnrichmentData, ttl time.Duration) error
}

// Enricher extracts an address from a LogEvent and resolves it, preferring
// a cache in front of the configured Provider. It never raises: an
// extraction miss, provider error or deadline results in nil. A failed
// cache read falls back to the provider; a failed cache write is logged.
type Enricher struct {
	provider Provider
	cache    Cache
	deadline time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option {
	return func(e *Enricher) { e.deadline = d }
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Enricher) { e.ttl = ttl }
}

// WithLogger sets the logger used for enrichment failures. Transient
// external errors are handled locally and logged at debug rather than
// propagated, so a lookup provider outage never blocks the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) { e.logger = logger }
}

// New returns an Enricher. cache may be nil to disable caching.
func New(provider Provider, cache Cache, opts ...Option) *Enricher {
	e := &Enricher{
		provider: provider,
		cache:    cache,
		deadline: DefaultDeadline,
		ttl:      DefaultCacheTTL,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Enrich resolves the address embedded in evt's message, if any. It returns
// nil when no address is found, the provider fails, or the deadline is
// exceeded. A cache error does not make it return nil: a failed read falls
// back to the provider and a failed write is only logged.
func (e *Enricher) Enrich(ctx context.Context, evt event.LogEvent) *event.EnrichmentData {
	ip, ok := ExtractIP(evt)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	if e.cache != nil {
		if cached, hit, err := e.cache.Get(ctx, ip); err == nil && hit {
			return cached
		}
	}

	data, err := e.lookupWithRetry(ctx, ip)
	if err != nil {
		e.logger.DebugContext(ctx, "enrichment lookup failed", "ip", ip, "error", err)

		return nil
	}

	data.IP = ip
	data.IsPrivate = IsPrivate(ip)

	if e.cache != nil {
		if err := e.cache.Set(ctx, ip, data, e.ttl); err != nil {
			e.logger.DebugContext(ctx, "enrichment cache write failed", "ip", ip, "error", err)
		}
	}

	return data
}

func (e *Enricher) lookupWithRetry(ctx context.Context, ip string) (*event.EnrichmentData, error) {
	var data *event.EnrichmentData

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = e.deadline

	operation := func() error {
		d, err := e.provider.Lookup(ctx, ip)
		if err != nil {
			return err
		}

		data = d

		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)
	}

	return data, nil
}

// cacheEntry is the JSON shape stored in Cache implementations backed by a
// serialized store (e.g. Redis).
type cacheEntry struct {
	Data *event.EnrichmentData `json:"data"`
}

func marshalEntry(data *event.EnrichmentData) ([]byte, error) {
	return json.Marshal(cacheEntry{Data: data})
}

func unmarshalEntry(raw []byte) (*event.EnrichmentData, error) {
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}

	return entry.Data, nil
}
