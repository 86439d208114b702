package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

// RefreshService implements the ports.RefreshService interface
type RefreshService struct {
	tokens     ports.TokenRepository
	lock       *Lock
	refresher  *TokenRefresher
	dispatcher *Dispatcher
	metrics    ports.MetricsService
	softLimit  time.Duration
	logger     *slog.Logger
}

// NewRefreshService creates the refresh orchestrator. Token work still
// running softLimit after the run started is abandoned; zero disables it.
func NewRefreshService(
	tokens ports.TokenRepository,
	lock *Lock,
	refresher *TokenRefresher,
	dispatcher *Dispatcher,
	metrics ports.MetricsService,
	softLimit time.Duration,
	logger *slog.Logger,
) *RefreshService {
	return &RefreshService{
		tokens:     tokens,
		lock:       lock,
		refresher:  refresher,
		dispatcher: dispatcher,
		metrics:    metrics,
		softLimit:  softLimit,
		logger:     logger.With("component", "refresh_service"),
	}
}

// Run refreshes every tracked token under the run lock. A contended lock
// yields a skipped summary, not an error. Errors returned here are run
// failures and are meant for the run-level retry policy.
func (s *RefreshService) Run(ctx context.Context) (*domain.RunSummary, error) {
	var summary *domain.RunSummary

	acquired, err := s.lock.WithLock(ctx, func(ctx context.Context, holder string) error {
		var err error
		summary, err = s.run(ctx, s.logger.With("lock_holder", holder))
		return err
	})
	if err != nil {
		s.metrics.ObserveRun("failed", 0)
		return nil, fmt.Errorf("%w: %w", domain.ErrRunFailure, err)
	}

	if !acquired {
		s.logger.Info("refresh skipped, another run holds the lock")
		s.metrics.ObserveRun(string(domain.RunSkipped), 0)
		return domain.SkippedSummary(), nil
	}

	return summary, nil
}

func (s *RefreshService) run(ctx context.Context, logger *slog.Logger) (*domain.RunSummary, error) {
	ids, err := s.tokens.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	if len(ids) == 0 {
		logger.Info("no tokens to update")
		s.metrics.ObserveRun(string(domain.RunCompleted), 0)
		return domain.EmptySummary(), nil
	}

	logger.Info("refresh started", "tokens", len(ids))

	stats := domain.NewRunStats(len(ids))

	dispatchCtx := ctx
	if s.softLimit > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, s.softLimit)
		defer cancel()
	}

	s.dispatcher.Dispatch(dispatchCtx, ids, stats)

	if dispatchCtx.Err() != nil && ctx.Err() == nil {
		logger.Warn("soft time limit reached, unfinished tokens abandoned",
			"soft_limit", s.softLimit.String())
	}

	// flushed on the run context so it survives the soft limit
	if err := s.metrics.RecordRun(ctx, stats); err != nil {
		logger.Error("failed to save run metrics", "error", err)
	}

	summary := stats.Summary()
	s.metrics.ObserveRun(string(domain.RunCompleted), stats.Duration())

	logger.Info("refresh completed",
		"total", summary.Total,
		"success", summary.Success,
		"warning", summary.Warning,
		"error", summary.Error,
		"success_rate", summary.SuccessRate,
		"duration_seconds", summary.DurationSeconds,
	)

	return summary, nil
}

// RefreshToken refreshes one token found by symbol, address or CEX symbol.
// A userID of zero searches across all owners.
func (s *RefreshService) RefreshToken(ctx context.Context, userID int64, value string) (domain.TokenResult, error) {
	token, err := s.tokens.FindByValue(ctx, userID, value)
	if err != nil {
		return domain.TokenResult{}, err
	}

	result := s.refresher.Refresh(ctx, token)
	s.metrics.ObserveResult(result)

	return result, nil
}

// Ensure RefreshService implements ports.RefreshService
var _ ports.RefreshService = (*RefreshService)(nil)
