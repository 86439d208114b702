package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

// TokenRefresher runs the fetch-and-persist pipeline for a single token
type TokenRefresher struct {
	tokens   ports.TokenRepository
	prices   ports.PriceRepository
	resolver ports.PriceResolver
	logger   *slog.Logger
}

// NewTokenRefresher creates a new per-token pipeline
func NewTokenRefresher(
	tokens ports.TokenRepository,
	prices ports.PriceRepository,
	resolver ports.PriceResolver,
	logger *slog.Logger,
) *TokenRefresher {
	return &TokenRefresher{
		tokens:   tokens,
		prices:   prices,
		resolver: resolver,
		logger:   logger.With("component", "token_refresher"),
	}
}

// RefreshByID loads the token and refreshes it
func (r *TokenRefresher) RefreshByID(ctx context.Context, tokenID int64) domain.TokenResult {
	token, err := r.tokens.GetByID(ctx, tokenID)
	if err != nil {
		r.logger.Error("token lookup failed", "token_id", tokenID, "error", err)
		return domain.Failed(tokenID, fmt.Errorf("token %d: %w", tokenID, err))
	}

	return r.Refresh(ctx, token)
}

// Refresh resolves both venue prices, computes the spread and appends
// one price record.
func (r *TokenRefresher) Refresh(ctx context.Context, token *domain.Token) domain.TokenResult {
	logger := r.logger.With("token_id", token.ID, "symbol", token.Symbol)

	quote := r.resolver.Resolve(ctx, token)
	if !quote.Complete() {
		err := missingPricesError(token, quote)
		logger.Error("price refresh failed", "error", err)
		return domain.Failed(token.ID, err)
	}

	record, err := domain.NewPriceRecord(token.ID, quote.DEX.Decimal, quote.CEX.Decimal)
	if err != nil {
		logger.Error("invalid price quote",
			"price_dex", quote.DEX.Decimal.String(),
			"price_cex", quote.CEX.Decimal.String(),
			"error", err,
		)
		return domain.Failed(token.ID, err)
	}

	if err := r.prices.Create(ctx, record); err != nil {
		logger.Error("failed to store price record", "error", err)
		return domain.Failed(token.ID, err)
	}

	if record.ID == 0 {
		logger.Warn("price record not created")
		return domain.Warned(token.ID, "price record was stored without an id")
	}

	logger.Info("price record created",
		"price_id", record.ID,
		"price_dex", record.DEXPrice.String(),
		"price_cex", record.CEXPrice.String(),
		"spread", record.Spread.StringFixed(2),
	)

	return domain.Succeeded(token.ID, record.ID)
}

func missingPricesError(token *domain.Token, quote domain.Quote) error {
	var missing []string
	if !quote.DEX.Valid {
		missing = append(missing, fmt.Sprintf("DEX (address: %s)", token.Address))
	}
	if !quote.CEX.Valid {
		missing = append(missing, fmt.Sprintf("CEX (symbol: %s)", token.CEXSymbol))
	}

	return fmt.Errorf("%w: could not fetch %s price(s) for token_id=%d",
		domain.ErrSourceUnavailable, strings.Join(missing, ", "), token.ID)
}
