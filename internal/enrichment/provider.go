package enrichment

import (
	"context"

	"github.com/mlidstrom/castellan/internal/event"
)

// StaticProvider resolves addresses against a fixed lookup table. It stands
// in for a real geo/ASN database client: the interface (Provider) is what
// the pipeline depends on, so swapping in a MaxMind- or IPinfo-backed
// implementation later requires no caller changes.
type StaticProvider struct {
	entries map[string]event.EnrichmentData
}

// NewStaticProvider returns a StaticProvider seeded with entries.
func NewStaticProvider(entries map[string]event.EnrichmentData) *StaticProvider {
	return &StaticProvider{entries: entries}
}

// Lookup implements Provider. Unknown addresses resolve to a minimal,
// non-high-risk record rather than failing, since "no geo data available"
// is not a transport error.
func (p *StaticProvider) Lookup(ctx context.Context, ip string) (*event.EnrichmentData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if data, ok := p.entries[ip]; ok {
		out := data

		return &out, nil
	}

	return &event.EnrichmentData{}, nil
}
