package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/services"
)

func TestTokenRefresher_Refresh(t *testing.T) {
	token := &domain.Token{ID: 4, UserID: 1, Symbol: "AAA", Address: "0xaaaa", CEXSymbol: "AAA"}

	newRefresher := func(dex, cex *mockSource, prices *mockPriceRepository) *services.TokenRefresher {
		resolver := services.NewPriceResolver(dex, cex, newTestLogger())
		return services.NewTokenRefresher(newMockTokenRepository(token), prices, resolver, newTestLogger())
	}

	t.Run("stores one record with the spread", func(t *testing.T) {
		prices := &mockPriceRepository{}
		r := newRefresher(
			&mockSource{prices: map[string]decimal.Decimal{"0xaaaa": decimal.NewFromInt(105)}},
			&mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(100)}},
			prices,
		)

		result := r.Refresh(context.Background(), token)
		assert.Equal(t, domain.StatusSuccess, result.Status)
		assert.Equal(t, int64(1), result.PriceID)

		records := prices.byToken(4)
		require.Len(t, records, 1)
		assert.True(t, records[0].Spread.Equal(decimal.NewFromInt(5)))
	})

	t.Run("names every missing venue", func(t *testing.T) {
		prices := &mockPriceRepository{}
		r := newRefresher(&mockSource{}, &mockSource{}, prices)

		result := r.Refresh(context.Background(), token)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Equal(t,
			"price source unavailable: could not fetch DEX (address: 0xaaaa), CEX (symbol: AAA) price(s) for token_id=4",
			result.Error)
		assert.ErrorIs(t, result.Cause, domain.ErrSourceUnavailable)
		assert.Empty(t, prices.byToken(4))
	})

	t.Run("zero cex price is an error", func(t *testing.T) {
		prices := &mockPriceRepository{}
		r := newRefresher(
			&mockSource{prices: map[string]decimal.Decimal{"0xaaaa": decimal.NewFromInt(1)}},
			&mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.Zero}},
			prices,
		)

		result := r.Refresh(context.Background(), token)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Empty(t, prices.byToken(4))
	})

	t.Run("storage failure is an error", func(t *testing.T) {
		r := newRefresher(
			&mockSource{prices: map[string]decimal.Decimal{"0xaaaa": decimal.NewFromInt(2)}},
			&mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(1)}},
			&mockPriceRepository{createErr: errors.New("disk full")},
		)

		result := r.Refresh(context.Background(), token)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Contains(t, result.Error, "disk full")
	})

	t.Run("record without id is a warning", func(t *testing.T) {
		r := newRefresher(
			&mockSource{prices: map[string]decimal.Decimal{"0xaaaa": decimal.NewFromInt(2)}},
			&mockSource{prices: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(1)}},
			&mockPriceRepository{skipID: true},
		)

		result := r.Refresh(context.Background(), token)
		assert.Equal(t, domain.StatusWarning, result.Status)
		assert.NotEmpty(t, result.Message)
	})
}

func TestTokenRefresher_RefreshByID(t *testing.T) {
	resolver := services.NewPriceResolver(&mockSource{}, &mockSource{}, newTestLogger())
	r := services.NewTokenRefresher(newMockTokenRepository(), &mockPriceRepository{}, resolver, newTestLogger())

	result := r.RefreshByID(context.Background(), 99)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, int64(99), result.TokenID)
	assert.ErrorIs(t, result.Cause, domain.ErrTokenNotFound)
}
