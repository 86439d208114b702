package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

// ErrAbandoned marks tokens that had not finished when the dispatch context ended
var ErrAbandoned = errors.New("abandoned at soft time limit")

// tokenPipeline refreshes one token by id
type tokenPipeline interface {
	RefreshByID(ctx context.Context, tokenID int64) domain.TokenResult
}

// Dispatcher fans token refreshes out over a bounded set of workers
type Dispatcher struct {
	pipeline tokenPipeline
	workers  int
	delay    time.Duration
	metrics  ports.MetricsService
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher running up to workers refreshes at
// once. Each worker pauses for delay after every token.
func NewDispatcher(
	pipeline tokenPipeline,
	workers int,
	delay time.Duration,
	metrics ports.MetricsService,
	logger *slog.Logger,
) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		pipeline: pipeline,
		workers:  workers,
		delay:    delay,
		metrics:  metrics,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch refreshes every token and records each outcome into stats.
// It returns one result per token id, in input order. Per-token failures
// never abort sibling work.
func (d *Dispatcher) Dispatch(ctx context.Context, tokenIDs []int64, stats *domain.RunStats) []domain.TokenResult {
	results := make([]domain.TokenResult, len(tokenIDs))

	var g errgroup.Group
	g.SetLimit(d.workers)

	for i, id := range tokenIDs {
		g.Go(func() error {
			result := d.refresh(ctx, id)

			results[i] = result
			stats.Record(result)
			if d.metrics != nil {
				d.metrics.ObserveResult(result)
			}

			d.pause(ctx)
			return nil
		})
	}

	_ = g.Wait()

	d.logger.Debug("dispatch finished",
		"tokens", len(tokenIDs),
		"workers", d.workers,
	)

	return results
}

// refresh is the per-token boundary: panics become error results
func (d *Dispatcher) refresh(ctx context.Context, tokenID int64) (result domain.TokenResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("token refresh panicked",
				"token_id", tokenID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = domain.Failed(tokenID, fmt.Errorf("%w: panic: %v", domain.ErrInternal, r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return domain.Failed(tokenID, fmt.Errorf("%w: %w", ErrAbandoned, err))
	}

	return d.pipeline.RefreshByID(ctx, tokenID)
}

func (d *Dispatcher) pause(ctx context.Context) {
	if d.delay <= 0 {
		return
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
