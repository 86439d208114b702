package services_test

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/prxgr4mmer/spread-tracker/internal/adapters/redis"
	"github.com/prxgr4mmer/spread-tracker/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := redis.NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), newTestLogger())
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

// Mock implementations for testing

type mockTokenRepository struct {
	mu      sync.Mutex
	tokens  map[int64]*domain.Token
	listErr error
}

func newMockTokenRepository(tokens ...*domain.Token) *mockTokenRepository {
	m := &mockTokenRepository{tokens: make(map[int64]*domain.Token)}
	for _, t := range tokens {
		m.tokens[t.ID] = t
	}
	return m
}

func (m *mockTokenRepository) ListIDs(ctx context.Context) ([]int64, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.tokens))
	for id := range m.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *mockTokenRepository) GetByID(ctx context.Context, id int64) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tokens[id]; ok {
		return t, nil
	}
	return nil, domain.ErrTokenNotFound
}

func (m *mockTokenRepository) FindByValue(ctx context.Context, userID int64, value string) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tokens {
		if userID != 0 && t.UserID != userID {
			continue
		}
		if t.Symbol == value || t.Address == value || t.CEXSymbol == value {
			return t, nil
		}
	}
	return nil, domain.ErrTokenNotFound
}

type mockPriceRepository struct {
	mu        sync.Mutex
	records   []*domain.PriceRecord
	nextID    int64
	createErr error
	skipID    bool
}

func (m *mockPriceRepository) Create(ctx context.Context, record *domain.PriceRecord) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.skipID {
		m.nextID++
		record.ID = m.nextID
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockPriceRepository) byToken(tokenID int64) []*domain.PriceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.PriceRecord
	for _, r := range m.records {
		if r.TokenID == tokenID {
			out = append(out, r)
		}
	}
	return out
}

// mockSource serves fixed prices keyed by address or symbol
type mockSource struct {
	prices  map[string]decimal.Decimal
	errs    map[string]error
	pingErr error
	delay   time.Duration
	calls   atomic.Int32
}

func (m *mockSource) GetPrice(ctx context.Context, key string) (decimal.Decimal, error) {
	m.calls.Add(1)

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	if err, ok := m.errs[key]; ok {
		return decimal.Zero, err
	}
	if p, ok := m.prices[key]; ok {
		return p, nil
	}
	return decimal.Zero, domain.ErrNoPairs
}

func (m *mockSource) Ping(ctx context.Context) error {
	return m.pingErr
}

type mockMetricsService struct {
	mu       sync.Mutex
	results  []domain.TokenResult
	runs     []string
	recorded []*domain.RunStats
}

func (m *mockMetricsService) RecordRun(ctx context.Context, stats *domain.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, stats)
	return nil
}

func (m *mockMetricsService) ObserveResult(result domain.TokenResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *mockMetricsService) ObserveRun(status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func (m *mockMetricsService) GetRunMetrics(ctx context.Context) (*domain.RunMetrics, error) {
	return &domain.RunMetrics{LastRun: map[string]string{}}, nil
}
