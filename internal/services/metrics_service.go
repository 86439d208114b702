package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

const (
	// CumulativeMetricsKey holds counters summed across runs
	CumulativeMetricsKey = "metrics:price_updates"
	// LastRunMetricsKey holds a snapshot of the most recent run
	LastRunMetricsKey = "metrics:last_update"

	metricsNamespace = "spread_tracker"
)

// MetricsService implements the ports.MetricsService interface
type MetricsService struct {
	store     ports.KeyValueStore
	retention time.Duration
	logger    *slog.Logger

	tokenResults *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	lastSuccess  prometheus.Gauge
}

// NewMetricsService creates a new metrics service. The prometheus
// collectors are registered on reg when it is not nil.
func NewMetricsService(
	store ports.KeyValueStore,
	retention time.Duration,
	reg prometheus.Registerer,
	logger *slog.Logger,
) *MetricsService {
	m := &MetricsService{
		store:     store,
		retention: retention,
		logger:    logger.With("component", "metrics_service"),
		tokenResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_refresh_total",
			Help:      "Per-token refresh outcomes by status.",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Refresh runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of completed refresh runs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_completed_run_timestamp_seconds",
			Help:      "Unix time of the last completed refresh run.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.tokenResults, m.runs, m.runDuration, m.lastSuccess)
	}

	return m
}

// RecordRun adds the run counters to the cumulative hash and overwrites
// the last-run snapshot. Runs without a single success are not flushed.
func (m *MetricsService) RecordRun(ctx context.Context, stats *domain.RunStats) error {
	if stats.Success() == 0 {
		m.logger.Debug("no successful tokens, skipping metrics flush")
		return nil
	}

	counters := []struct {
		field string
		value int64
	}{
		{"total", stats.Total()},
		{"success", stats.Success()},
		{"warning", stats.Warning()},
		{"error", stats.Error()},
	}

	for _, c := range counters {
		if err := m.store.HIncrBy(ctx, CumulativeMetricsKey, c.field, c.value); err != nil {
			return fmt.Errorf("failed to increment %s: %w", c.field, err)
		}
	}

	snapshot := map[string]string{
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		"duration":     strconv.FormatFloat(stats.DurationSeconds(), 'f', -1, 64),
		"success_rate": stats.SuccessRateString(),
		"total":        strconv.FormatInt(stats.Total(), 10),
		"success":      strconv.FormatInt(stats.Success(), 10),
	}
	if err := m.store.HSet(ctx, LastRunMetricsKey, snapshot); err != nil {
		return fmt.Errorf("failed to store last run: %w", err)
	}

	if m.retention > 0 {
		for _, key := range []string{CumulativeMetricsKey, LastRunMetricsKey} {
			if err := m.store.Expire(ctx, key, m.retention); err != nil {
				return fmt.Errorf("failed to set retention on %s: %w", key, err)
			}
		}
	}

	m.logger.Debug("run metrics saved")
	return nil
}

// ObserveResult records one token outcome in process metrics
func (m *MetricsService) ObserveResult(result domain.TokenResult) {
	m.tokenResults.WithLabelValues(string(result.Status)).Inc()
}

// ObserveRun records a finished run in process metrics
func (m *MetricsService) ObserveRun(status string, duration time.Duration) {
	m.runs.WithLabelValues(status).Inc()

	if status == string(domain.RunCompleted) {
		m.runDuration.Observe(duration.Seconds())
		m.lastSuccess.SetToCurrentTime()
	}
}

// GetRunMetrics reads cumulative and last-run statistics
func (m *MetricsService) GetRunMetrics(ctx context.Context) (*domain.RunMetrics, error) {
	cumulative, err := m.store.HGetAll(ctx, CumulativeMetricsKey)
	if err != nil {
		return nil, err
	}

	lastRun, err := m.store.HGetAll(ctx, LastRunMetricsKey)
	if err != nil {
		return nil, err
	}
	if lastRun == nil {
		lastRun = map[string]string{}
	}

	return &domain.RunMetrics{
		Cumulative: domain.RunCounters{
			Total:   m.parseCounter(cumulative, "total"),
			Success: m.parseCounter(cumulative, "success"),
			Warning: m.parseCounter(cumulative, "warning"),
			Error:   m.parseCounter(cumulative, "error"),
		},
		LastRun: lastRun,
	}, nil
}

func (m *MetricsService) parseCounter(fields map[string]string, field string) int64 {
	raw, ok := fields[field]
	if !ok {
		return 0
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("malformed metrics counter", "field", field, "value", raw)
		return 0
	}
	return n
}

// Ensure MetricsService implements ports.MetricsService
var _ ports.MetricsService = (*MetricsService)(nil)
