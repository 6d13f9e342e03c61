// Package embedding turns event text into fixed-dimension float vectors for
// the vector store's semantic neighbor search.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedderUnavailable marks a failed embed call as transient and
// recoverable: the orchestrator drops the event from the LLM path but
// still runs its correlation and deterministic paths.
var ErrEmbedderUnavailable = errors.New("embedder: unavailable")

// Embedder produces a deterministic fixed-dimension vector for a piece of
// text, for a given provider/model configuration.
type Embedder interface {
	// Embed returns a vector of Dimension() length for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns D, the store's fixed embedding dimension.
	Dimension() int
}
