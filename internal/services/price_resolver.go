package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

const (
	SourceDEX = "dexscreener"
	SourceCEX = "mexc"

	healthProbeTimeout = 5 * time.Second

	SourceHealthy     = "healthy"
	SourceUnhealthy   = "unhealthy"
	SourceUnreachable = "unreachable"
)

// PriceResolver implements the ports.PriceResolver interface
type PriceResolver struct {
	dex    ports.DEXSource
	cex    ports.CEXSource
	logger *slog.Logger
}

// NewPriceResolver creates a resolver over one DEX and one CEX source
func NewPriceResolver(dex ports.DEXSource, cex ports.CEXSource, logger *slog.Logger) *PriceResolver {
	return &PriceResolver{
		dex:    dex,
		cex:    cex,
		logger: logger.With("component", "price_resolver"),
	}
}

// Resolve queries both venues. Both lookups are always attempted and
// failures are logged and reported as an absent price.
func (r *PriceResolver) Resolve(ctx context.Context, token *domain.Token) domain.Quote {
	var quote domain.Quote

	if price, err := r.dex.GetPrice(ctx, token.Address); err != nil {
		r.logger.Warn("dex price unavailable",
			"token_id", token.ID,
			"address", token.Address,
			"error", err,
		)
	} else {
		quote.DEX = decimal.NewNullDecimal(price)
	}

	if price, err := r.cex.GetPrice(ctx, token.CEXSymbol); err != nil {
		r.logger.Warn("cex price unavailable",
			"token_id", token.ID,
			"cex_symbol", token.CEXSymbol,
			"error", err,
		)
	} else {
		quote.CEX = decimal.NewNullDecimal(price)
	}

	return quote
}

// Health probes both sources concurrently with well-known assets
func (r *PriceResolver) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		dexErr error
		cexErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		dexErr = r.dex.Ping(ctx)
	}()
	go func() {
		defer wg.Done()
		cexErr = r.cex.Ping(ctx)
	}()
	wg.Wait()

	return map[string]string{
		SourceDEX: r.probeStatus(SourceDEX, dexErr),
		SourceCEX: r.probeStatus(SourceCEX, cexErr),
	}
}

func (r *PriceResolver) probeStatus(source string, err error) string {
	if err == nil {
		return SourceHealthy
	}

	r.logger.Warn("price source health check failed", "source", source, "error", err)

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return SourceUnreachable
	}
	return SourceUnhealthy
}

// Ensure PriceResolver implements ports.PriceResolver
var _ ports.PriceResolver = (*PriceResolver)(nil)
