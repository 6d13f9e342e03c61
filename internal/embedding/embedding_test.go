package embedding_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlidstrom/castellan/internal/embedding"
)

func TestDeterministicEmbedder_Deterministic(t *testing.T) {
	t.Parallel()

	e := embedding.NewDeterministicEmbedder(32, "model-v1")

	v1, err := e.Embed(context.Background(), "Account Lockout on DC-01")
	require.NoError(t, err)

	v2, err := e.Embed(context.Background(), "Account Lockout on DC-01")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 32)
}

func TestDeterministicEmbedder_NormalizesWhitespaceAndCase(t *testing.T) {
	t.Parallel()

	e := embedding.NewDeterministicEmbedder(16, "model-v1")

	v1, err := e.Embed(context.Background(), "Failed Login")
	require.NoError(t, err)

	v2, err := e.Embed(context.Background(), "  failed login  ")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestDeterministicEmbedder_DifferentTextDiffers(t *testing.T) {
	t.Parallel()

	e := embedding.NewDeterministicEmbedder(16, "model-v1")

	v1, err := e.Embed(context.Background(), "Account Lockout")
	require.NoError(t, err)

	v2, err := e.Embed(context.Background(), "Special Privileges Assigned")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestDeterministicEmbedder_DifferentSaltDiffers(t *testing.T) {
	t.Parallel()

	a := embedding.NewDeterministicEmbedder(16, "model-v1")
	b := embedding.NewDeterministicEmbedder(16, "model-v2")

	va, err := a.Embed(context.Background(), "Account Lockout")
	require.NoError(t, err)

	vb, err := b.Embed(context.Background(), "Account Lockout")
	require.NoError(t, err)

	assert.NotEqual(t, va, vb)
}

func TestDeterministicEmbedder_VectorIsUnitNorm(t *testing.T) {
	t.Parallel()

	e := embedding.NewDeterministicEmbedder(64, "model-v1")

	v, err := e.Embed(context.Background(), "Kerberos Pre-Authentication Failed")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}

	assert.InDelta(t, 1.0, sumSquares, 0.01)
}

func TestDeterministicEmbedder_RespectsCancelledContext(t *testing.T) {
	t.Parallel()

	e := embedding.NewDeterministicEmbedder(16, "model-v1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

// flakyEmbedder fails the first N calls with a transient error, then
// delegates to inner.
type flakyEmbedder struct {
	inner      embedding.Embedder
	failsLeft  int32
	transient  error
	calls      int32
}

func (f *flakyEmbedder) Dimension() int { return f.inner.Dimension() }

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)

	if atomic.AddInt32(&f.failsLeft, -1) >= 0 {
		return nil, f.transient
	}

	return f.inner.Embed(ctx, text)
}

func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	t.Parallel()

	inner := embedding.NewDeterministicEmbedder(16, "model-v1")
	flaky := &flakyEmbedder{inner: inner, failsLeft: 2, transient: errors.New("connection reset")}

	retrying := embedding.WithRetry(flaky, embedding.RetryConfig{
		MaxElapsedTime:  2 * time.Second,
		InitialInterval: 5 * time.Millisecond,
	}, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	v, err := retrying.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, v, 16)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&flaky.calls), int32(3))
}

func TestWithRetry_ExhaustedRetriesReturnErrEmbedderUnavailable(t *testing.T) {
	t.Parallel()

	inner := embedding.NewDeterministicEmbedder(16, "model-v1")
	flaky := &flakyEmbedder{inner: inner, failsLeft: 1000, transient: errors.New("connection reset")}

	retrying := embedding.WithRetry(flaky, embedding.RetryConfig{
		MaxElapsedTime:  30 * time.Millisecond,
		InitialInterval: 5 * time.Millisecond,
	}, nil)

	_, err := retrying.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, embedding.ErrEmbedderUnavailable)
}

func TestWithRetry_PropagatesContextCancellation(t *testing.T) {
	t.Parallel()

	inner := embedding.NewDeterministicEmbedder(16, "model-v1")
	flaky := &flakyEmbedder{inner: inner, failsLeft: 1000, transient: errors.New("connection reset")}

	retrying := embedding.WithRetry(flaky, embedding.DefaultRetryConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retrying.Embed(ctx, "text")
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, embedding.ErrEmbedderUnavailable))
}
