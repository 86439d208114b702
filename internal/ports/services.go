package ports

import (
	"context"
	"time"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
)

// PriceResolver resolves both venue prices for a token.
// It never fails: an unresolvable venue is reported as an invalid NullDecimal.
type PriceResolver interface {
	// Resolve queries the DEX and CEX sources for the token
	Resolve(ctx context.Context, token *domain.Token) domain.Quote

	// Health probes both sources with well-known assets
	Health(ctx context.Context) map[string]string
}

// RefreshService defines the contract for the price refresh job
type RefreshService interface {
	// Run refreshes every tracked token under the run lock
	Run(ctx context.Context) (*domain.RunSummary, error)

	// RefreshToken refreshes a single token found by symbol, address or CEX symbol
	RefreshToken(ctx context.Context, userID int64, value string) (domain.TokenResult, error)
}

// MetricsService defines the contract for run statistics
type MetricsService interface {
	// RecordRun flushes run statistics to the shared store
	RecordRun(ctx context.Context, stats *domain.RunStats) error

	// ObserveResult records one token outcome in process metrics
	ObserveResult(result domain.TokenResult)

	// ObserveRun records a finished run in process metrics
	ObserveRun(status string, duration time.Duration)

	// GetRunMetrics reads cumulative and last-run statistics
	GetRunMetrics(ctx context.Context) (*domain.RunMetrics, error)
}

// HealthStatus represents the health of the service
type HealthStatus struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Store    string            `json:"store"`
	Sources  map[string]string `json:"sources"`
}
