package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// DEXSource resolves a token price from decentralized exchange pairs
type DEXSource interface {
	// GetPrice returns the quoted USD price of the best pair for the on-chain address
	GetPrice(ctx context.Context, address string) (decimal.Decimal, error)

	// Ping checks if the aggregator is reachable
	Ping(ctx context.Context) error
}

// CEXSource resolves a token index price from a centralized exchange
type CEXSource interface {
	// GetPrice returns the USDT index price for the exchange symbol
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Ping checks if the exchange is reachable
	Ping(ctx context.Context) error
}
