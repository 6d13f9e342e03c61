package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultDimension is the vector store's default fixed embedding
	// dimension.
	DefaultDimension = 64
)

// DeterministicEmbedder turns normalized text into a unit-norm vector by
// hashing it with BLAKE2b and expanding the digest into D float32 lanes.
//
// This stands in for a real provider call: determinism only requires that
// the same text under a given provider/model configuration always produce
// the same vector, not a specific model. Grounded on golang.org/x/crypto/blake2b.
type DeterministicEmbedder struct {
	dimension int
	// salt namespaces the hash so two DeterministicEmbedders configured
	// with different salts ("model versions") never collide on the same
	// text, matching "deterministic ... for a given provider/model
	// configuration" rather than globally deterministic.
	salt string
}

// NewDeterministicEmbedder returns a DeterministicEmbedder with the given
// dimension and model salt. dimension<=0 falls back to DefaultDimension.
func NewDeterministicEmbedder(dimension int, modelSalt string) *DeterministicEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &DeterministicEmbedder{dimension: dimension, salt: modelSalt}
}

// Dimension implements Embedder.
func (d *DeterministicEmbedder) Dimension() int {
	return d.dimension
}

// Embed implements Embedder. It normalizes text (trim, lowercase) before
// hashing so that trivial whitespace/casing differences produce the same
// vector, matching how near-duplicate log messages should land near each
// other in the vector store.
func (d *DeterministicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := strings.ToLower(strings.TrimSpace(text))

	vec := make([]float32, d.dimension)

	// Expand the digest by re-hashing with an incrementing counter appended
	// until we have enough bytes for every lane (classic HKDF-style
	// expansion without pulling in a full HKDF dependency).
	var lane int

	for counter := uint32(0); lane < d.dimension; counter++ {
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, err
		}

		h.Write([]byte(d.salt))
		h.Write([]byte(normalized))

		var counterBytes [4]byte
		binary.BigEndian.PutUint32(counterBytes[:], counter)
		h.Write(counterBytes[:])

		digest := h.Sum(nil)

		for i := 0; i+4 <= len(digest) && lane < d.dimension; i += 4 {
			bits := binary.BigEndian.Uint32(digest[i : i+4])
			// Map the uint32 to [-1, 1].
			vec[lane] = float32(bits)/float32(math.MaxUint32)*2 - 1
			lane++
		}
	}

	normalizeUnit(vec)

	return vec, nil
}

// normalizeUnit scales v in place to unit L2 norm, leaving the zero vector
// untouched (cosine similarity against the zero vector is defined as 0 by
// the vector store, not a division-by-zero panic).
func normalizeUnit(v []float32) {
	var sumSquares float64

	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}

	if sumSquares == 0 {
		return
	}

	norm := float32(math.Sqrt(sumSquares))

	for i := range v {
		v[i] /= norm
	}
}
