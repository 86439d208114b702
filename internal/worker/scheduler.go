package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prxgr4mmer/spread-tracker/internal/config"
	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
	"github.com/prxgr4mmer/spread-tracker/pkg/retry"
)

// ErrStaleTick is returned for ticks that waited past their expiry
var ErrStaleTick = errors.New("tick expired before it was picked up")

const tickBacklog = 64

// Tick is one scheduled invocation of the refresh run
type Tick struct {
	ID         string
	EnqueuedAt time.Time
}

// NewTick creates a tick with a fresh run id
func NewTick(now time.Time) Tick {
	return Tick{ID: uuid.NewString(), EnqueuedAt: now}
}

// Scheduler triggers refresh runs at a fixed interval and retries failed
// runs with the run-level policy.
type Scheduler struct {
	service     ports.RefreshService
	policy      retry.Policy
	interval    time.Duration
	expires     time.Duration
	timeLimit   time.Duration
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a new scheduler from the scheduler configuration
func NewScheduler(service ports.RefreshService, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Scheduler{
		service:     service,
		policy:      retry.TaskPolicy(cfg.MaxRetries, cfg.MaxBackoff),
		interval:    cfg.Interval,
		expires:     cfg.Expires,
		timeLimit:   cfg.TimeLimit,
		concurrency: concurrency,
		logger:      logger.With("component", "scheduler"),
		now:         time.Now,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// WithPolicy replaces the run-level retry policy
func (s *Scheduler) WithPolicy(p retry.Policy) *Scheduler {
	s.policy = p
	return s
}

// Start enqueues a tick every interval and runs them on the worker pool
// until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"expires", s.expires.String(),
		"concurrency", s.concurrency,
	)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks := make(chan Tick, tickBacklog)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range ticks {
				_ = s.Handle(workCtx, t)
			}
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial run
	s.enqueue(ticks, NewTick(s.now()))

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			err = ctx.Err()
			break loop

		case <-s.stopCh:
			s.logger.Info("scheduler stopped")
			break loop

		case <-ticker.C:
			s.enqueue(ticks, NewTick(s.now()))
		}
	}

	// cancel in-flight runs; their locks are released on the way out
	cancel()
	close(ticks)
	wg.Wait()

	return err
}

func (s *Scheduler) enqueue(ticks chan<- Tick, t Tick) {
	select {
	case ticks <- t:
	default:
		s.logger.Warn("tick backlog full, dropping tick", "run_id", t.ID)
	}
}

// Handle executes one tick: the refresh run plus its retries. Ticks older
// than the expiry are dropped.
func (s *Scheduler) Handle(ctx context.Context, t Tick) error {
	logger := s.logger.With("run_id", t.ID)

	if s.expires > 0 {
		if age := s.now().Sub(t.EnqueuedAt); age > s.expires {
			logger.Warn("dropping stale tick", "age", age.String())
			return ErrStaleTick
		}
	}

	err := s.policy.Run(ctx, func(ctx context.Context, attempt int) error {
		return s.attempt(ctx, logger.With("attempt", attempt))
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn("refresh run failed, retrying",
			"attempt", attempt,
			"retry_in", wait.String(),
			"error", err,
		)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, retry.ErrExhausted):
		err = fmt.Errorf("%w: %w", domain.ErrPersistentFailure, err)
		logger.Error("refresh run failed permanently", "error", err)
	case ctx.Err() != nil:
		logger.Info("refresh run interrupted", "error", err)
	default:
		logger.Error("refresh run failed", "error", err)
	}
	return err
}

func (s *Scheduler) attempt(ctx context.Context, logger *slog.Logger) error {
	if s.timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeLimit)
		defer cancel()
	}

	summary, err := s.service.Run(ctx)
	if err != nil {
		return err
	}

	logger.Debug("refresh run finished",
		"status", summary.Status,
		"total", summary.Total,
		"success", summary.Success,
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	close(s.stopCh)

	select {
	case <-s.doneCh:
		return nil
	case <-time.After(10 * time.Second):
		return context.DeadlineExceeded
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
