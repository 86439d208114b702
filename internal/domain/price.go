package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceRecord is an immutable DEX/CEX observation for one token
type PriceRecord struct {
	ID        int64           `json:"id"`
	TokenID   int64           `json:"token_id"`
	DEXPrice  decimal.Decimal `json:"price_dex"`
	CEXPrice  decimal.Decimal `json:"price_cex"`
	Spread    decimal.Decimal `json:"spread"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewPriceRecord validates both prices and computes the spread once
func NewPriceRecord(tokenID int64, dex, cex decimal.Decimal) (*PriceRecord, error) {
	if !dex.IsPositive() || !cex.IsPositive() {
		return nil, ErrInvalidPrice
	}

	spread, err := CalculateSpread(dex, cex)
	if err != nil {
		return nil, err
	}

	return &PriceRecord{
		TokenID:   tokenID,
		DEXPrice:  dex,
		CEXPrice:  cex,
		Spread:    spread,
		Timestamp: time.Now().UTC(),
	}, nil
}

// CalculateSpread returns |dex - cex| / cex * 100
func CalculateSpread(dex, cex decimal.Decimal) (decimal.Decimal, error) {
	if cex.IsZero() {
		return decimal.Zero, ErrZeroCEXPrice
	}
	return dex.Sub(cex).Abs().Div(cex).Mul(hundred), nil
}

// Quote is the outcome of resolving both venues for a token.
// An invalid NullDecimal means the venue could not be resolved.
type Quote struct {
	DEX decimal.NullDecimal
	CEX decimal.NullDecimal
}

// Complete reports whether both venues produced a price
func (q Quote) Complete() bool {
	return q.DEX.Valid && q.CEX.Valid
}
