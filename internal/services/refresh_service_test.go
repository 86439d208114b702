package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prxgr4mmer/spread-tracker/internal/adapters/dexscreener"
	"github.com/prxgr4mmer/spread-tracker/internal/adapters/mexc"
	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
	"github.com/prxgr4mmer/spread-tracker/internal/services"
)

type refreshFixture struct {
	service *services.RefreshService
	tokens  *mockTokenRepository
	prices  *mockPriceRepository
	store   ports.KeyValueStore
	lock    *services.Lock
}

func newRefreshFixture(
	t *testing.T,
	store ports.KeyValueStore,
	dex ports.DEXSource,
	cex ports.CEXSource,
	tokens ...*domain.Token,
) *refreshFixture {
	t.Helper()

	logger := newTestLogger()
	tokenRepo := newMockTokenRepository(tokens...)
	priceRepo := &mockPriceRepository{}

	metrics := services.NewMetricsService(store, 30*24*time.Hour, prometheus.NewRegistry(), logger)
	resolver := services.NewPriceResolver(dex, cex, logger)
	refresher := services.NewTokenRefresher(tokenRepo, priceRepo, resolver, logger)
	dispatcher := services.NewDispatcher(refresher, 5, 0, metrics, logger)
	lock := services.NewLock(store, testLockKey, 300*time.Second, logger)

	return &refreshFixture{
		service: services.NewRefreshService(tokenRepo, lock, refresher, dispatcher, metrics, time.Minute, logger),
		tokens:  tokenRepo,
		prices:  priceRepo,
		store:   store,
		lock:    lock,
	}
}

func TestRefreshService_Run_EndToEnd(t *testing.T) {
	const (
		addrA = "0xaaaa"
		addrB = "0xbbbb"
		addrC = "0xcccc"
	)

	dexServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tokens/" + addrA, "/tokens/" + addrB:
			_, _ = w.Write([]byte(`{"pairs":[{"quoteToken":{"symbol":"USDT"},"priceUsd":"105","volume":{"h24":90000},"liquidity":{"usd":500000}}]}`))
		case "/tokens/" + addrC:
			_, _ = w.Write([]byte(`{"pairs":[{"quoteToken":{"symbol":"WETH"},"priceUsd":"2.5","volume":{"h24":10},"liquidity":{"usd":300}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer dexServer.Close()

	cexServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/BBB_USDT" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"code":0,"data":{"indexPrice":100}}`))
	}))
	defer cexServer.Close()

	dex := dexscreener.NewClient(dexscreener.WithBaseURL(dexServer.URL), dexscreener.WithRetry(0, time.Millisecond))
	cex := mexc.NewClient(mexc.WithBaseURL(cexServer.URL), mexc.WithRetry(0, time.Millisecond))
	store, mr := newTestStore(t)

	f := newRefreshFixture(t, store, dex, cex,
		&domain.Token{ID: 1, UserID: 7, Symbol: "AAA", Chain: "ethereum", Address: addrA, CEXSymbol: "AAA"},
		&domain.Token{ID: 2, UserID: 7, Symbol: "BBB", Chain: "ethereum", Address: addrB, CEXSymbol: "BBB"},
		&domain.Token{ID: 3, UserID: 7, Symbol: "CCC", Chain: "ethereum", Address: addrC, CEXSymbol: "CCC"},
	)

	summary, err := f.service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, summary.Status)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, int64(1), summary.Success)
	assert.Equal(t, int64(0), summary.Warning)
	assert.Equal(t, int64(2), summary.Error)
	assert.Equal(t, "33.3%", summary.SuccessRate)

	records := f.prices.byToken(1)
	require.Len(t, records, 1)
	assert.True(t, records[0].Spread.Equal(decimal.NewFromInt(5)), "spread %s", records[0].Spread)
	assert.Empty(t, f.prices.byToken(2))
	assert.Empty(t, f.prices.byToken(3))

	assert.False(t, mr.Exists(testLockKey), "lock released after the run")

	assert.Equal(t, "3", mr.HGet(services.CumulativeMetricsKey, "total"))
	assert.Equal(t, "1", mr.HGet(services.CumulativeMetricsKey, "success"))
	assert.Equal(t, "0", mr.HGet(services.CumulativeMetricsKey, "warning"))
	assert.Equal(t, "2", mr.HGet(services.CumulativeMetricsKey, "error"))
	assert.Equal(t, "33.3%", mr.HGet(services.LastRunMetricsKey, "success_rate"))
	assert.Equal(t, 30*24*time.Hour, mr.TTL(services.CumulativeMetricsKey))
	assert.Equal(t, 30*24*time.Hour, mr.TTL(services.LastRunMetricsKey))
}

func TestRefreshService_Run_SkipsWhenLocked(t *testing.T) {
	dex := &mockSource{prices: map[string]decimal.Decimal{"0xaaaa": decimal.NewFromInt(1)}}
	cex := &mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(1)}}
	store, mr := newTestStore(t)

	f := newRefreshFixture(t, store, dex, cex,
		&domain.Token{ID: 1, Address: "0xaaaa", CEXSymbol: "AAA"},
	)

	held, err := f.lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, held)

	summary, err := f.service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunSkipped, summary.Status)
	assert.Equal(t, domain.SkipReasonLocked, summary.Reason)
	assert.Zero(t, dex.calls.Load())
	assert.Zero(t, cex.calls.Load())

	stored, _ := mr.Get(testLockKey)
	assert.Equal(t, held.Holder(), stored, "the other run keeps its lock")
}

func TestRefreshService_Run_EmptyPopulation(t *testing.T) {
	store, mr := newTestStore(t)
	f := newRefreshFixture(t, store, &mockSource{}, &mockSource{})

	summary, err := f.service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, summary.Status)
	assert.Equal(t, int64(0), summary.Total)
	assert.Equal(t, int64(0), summary.Success)
	assert.Equal(t, "No tokens to update", summary.Message)
	assert.False(t, mr.Exists(services.CumulativeMetricsKey))
	assert.False(t, mr.Exists(testLockKey))
}

func TestRefreshService_Run_StorageFailure(t *testing.T) {
	store, mr := newTestStore(t)
	f := newRefreshFixture(t, store, &mockSource{}, &mockSource{})
	f.tokens.listErr = errors.New("connection refused")

	summary, err := f.service.Run(context.Background())

	assert.Nil(t, summary)
	assert.ErrorIs(t, err, domain.ErrRunFailure)
	assert.False(t, mr.Exists(testLockKey), "lock released on failure")
}

func TestRefreshService_Run_NoSuccessSkipsFlush(t *testing.T) {
	store, mr := newTestStore(t)
	f := newRefreshFixture(t, store,
		&mockSource{errs: map[string]error{"0xaaaa": domain.ErrSourceUnavailable}},
		&mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(1)}},
		&domain.Token{ID: 1, Address: "0xaaaa", CEXSymbol: "AAA"},
	)

	summary, err := f.service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Error)
	assert.False(t, mr.Exists(services.CumulativeMetricsKey))
	assert.False(t, mr.Exists(services.LastRunMetricsKey))
}

func TestRefreshService_Run_SlowSourceDoesNotAffectSiblings(t *testing.T) {
	var slowCalls atomic.Int32
	dexServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/0xslow") {
			slowCalls.Add(1)
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"pairs":[{"quoteToken":{"symbol":"USDC"},"priceUsd":"110","volume":{"h24":90000},"liquidity":{"usd":500000}}]}`))
	}))
	defer dexServer.Close()

	dex := dexscreener.NewClient(
		dexscreener.WithBaseURL(dexServer.URL),
		dexscreener.WithTimeout(50*time.Millisecond),
		dexscreener.WithRetry(0, time.Millisecond),
	)
	cex := &mockSource{prices: map[string]decimal.Decimal{
		"FAST": decimal.NewFromInt(100),
		"SLOW": decimal.NewFromInt(100),
	}}
	store, _ := newTestStore(t)

	f := newRefreshFixture(t, store, dex, cex,
		&domain.Token{ID: 1, Address: "0xfast", CEXSymbol: "FAST"},
		&domain.Token{ID: 2, Address: "0xslow", CEXSymbol: "SLOW"},
	)

	summary, err := f.service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Success)
	assert.Equal(t, int64(1), summary.Error)
	assert.Equal(t, int32(1), slowCalls.Load())

	fast := f.prices.byToken(1)
	require.Len(t, fast, 1)
	assert.True(t, fast[0].Spread.Equal(decimal.NewFromInt(10)))
	assert.Empty(t, f.prices.byToken(2))
}

func TestRefreshService_Run_SoftLimitAbandonsTokens(t *testing.T) {
	logger := newTestLogger()
	store, _ := newTestStore(t)

	tokens := newMockTokenRepository(
		&domain.Token{ID: 1, Address: "0x1", CEXSymbol: "ONE"},
		&domain.Token{ID: 2, Address: "0x2", CEXSymbol: "TWO"},
		&domain.Token{ID: 3, Address: "0x3", CEXSymbol: "THREE"},
	)
	dex := &mockSource{delay: time.Second}
	cex := &mockSource{}

	metrics := &mockMetricsService{}
	refresher := services.NewTokenRefresher(tokens, &mockPriceRepository{}, services.NewPriceResolver(dex, cex, logger), logger)
	dispatcher := services.NewDispatcher(refresher, 1, 0, metrics, logger)
	lock := services.NewLock(store, testLockKey, time.Minute, logger)
	svc := services.NewRefreshService(tokens, lock, refresher, dispatcher, metrics, 40*time.Millisecond, logger)

	start := time.Now()
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, int64(3), summary.Error)
	require.Len(t, metrics.recorded, 1, "stats still flushed after the soft limit")
}

func TestRefreshService_RefreshToken(t *testing.T) {
	dex := &mockSource{prices: map[string]decimal.Decimal{"0xaaaa": decimal.NewFromInt(110)}}
	cex := &mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(100)}}
	store, _ := newTestStore(t)

	f := newRefreshFixture(t, store, dex, cex,
		&domain.Token{ID: 1, UserID: 7, Symbol: "aaa-token", Address: "0xaaaa", CEXSymbol: "AAA"},
	)

	t.Run("by cex symbol", func(t *testing.T) {
		result, err := f.service.RefreshToken(context.Background(), 7, "AAA")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, result.Status)
		assert.NotZero(t, result.PriceID)
	})

	t.Run("by address across users", func(t *testing.T) {
		result, err := f.service.RefreshToken(context.Background(), 0, "0xaaaa")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, result.Status)
	})

	t.Run("other user's token", func(t *testing.T) {
		_, err := f.service.RefreshToken(context.Background(), 8, "AAA")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("missing persisted id is a warning", func(t *testing.T) {
		f.prices.skipID = true
		defer func() { f.prices.skipID = false }()

		result, err := f.service.RefreshToken(context.Background(), 7, "aaa-token")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWarning, result.Status)
		assert.NotEmpty(t, result.Message)
	})
}
