package oracle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/agenthands/powermatch/internal/core/model"
)

// Limits bounds how hard an oracle is driven.
type Limits struct {
	MaxConcurrent int
	RatePerSecond float64
	Timeout       time.Duration
}

// Limited wraps an oracle with a concurrency cap, a rate limit and a per-call timeout. Failures of the
// wrapped oracle are reported as model.ErrOracleUnavailable; cancellation of the caller's context is
// returned unchanged.
type Limited struct {
	inner   SimilarityOracle
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
}

var _ SimilarityOracle = (*Limited)(nil)

func WithLimits(inner SimilarityOracle, l Limits) *Limited {
	w := &Limited{inner: inner, timeout: l.Timeout}
	if l.MaxConcurrent > 0 {
		w.sem = semaphore.NewWeighted(int64(l.MaxConcurrent))
	}
	if l.RatePerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(l.RatePerSecond), 1)
	}
	return w
}

func (w *Limited) Duplicates(ctx context.Context, p DedupPartition) ([]model.MatchLink, error) {
	return w.call(ctx, func(ctx context.Context) ([]model.MatchLink, error) {
		return w.inner.Duplicates(ctx, p)
	})
}

func (w *Limited) Link(ctx context.Context, p LinkPartition) ([]model.MatchLink, error) {
	return w.call(ctx, func(ctx context.Context) ([]model.MatchLink, error) {
		return w.inner.Link(ctx, p)
	})
}

func (w *Limited) call(ctx context.Context, fn func(context.Context) ([]model.MatchLink, error)) ([]model.MatchLink, error) {
	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer w.sem.Release(1)
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", model.ErrOracleUnavailable, err)
		}
	}

	callCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	links, err := fn(callCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", model.ErrOracleUnavailable, err)
	}
	return links, nil
}
