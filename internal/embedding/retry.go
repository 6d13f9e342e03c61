package embedding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig tunes the bounded exponential backoff wrapped around an
// Embedder's transport.
type RetryConfig struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
}

// DefaultRetryConfig starts at 100ms and gives up after 5s in total rather
// than retrying forever.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxElapsedTime:  5 * time.Second,
		InitialInterval: 100 * time.Millisecond,
	}
}

// retryingEmbedder decorates an Embedder with bounded exponential backoff,
// collapsing any exhausted retry sequence into ErrEmbedderUnavailable so
// callers only ever need to check one sentinel for a transient external
// failure.
type retryingEmbedder struct {
	inner  Embedder
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry wraps inner with bounded exponential-backoff retries. A nil
// logger disables retry-attempt logging.
func WithRetry(inner Embedder, cfg RetryConfig, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	return &retryingEmbedder{inner: inner, cfg: cfg, logger: logger}
}

func (r *retryingEmbedder) Dimension() int {
	return r.inner.Dimension()
}

func (r *retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxElapsedTime = r.cfg.MaxElapsedTime

	operation := func() error {
		v, err := r.inner.Embed(ctx, text)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}

			return err
		}

		vec = v

		return nil
	}

	notify := func(err error, next time.Duration) {
		r.logger.Warn("embed attempt failed, retrying", "error", err, "next_attempt_in", next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, ErrEmbedderUnavailable
	}

	return vec, nil
}
