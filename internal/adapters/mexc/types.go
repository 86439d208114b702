package mexc

import "github.com/shopspring/decimal"

// indexPriceResponse is the contract index price envelope.
// Data is null for unknown symbols.
type indexPriceResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    *indexPriceData `json:"data"`
}

type indexPriceData struct {
	Symbol     string           `json:"symbol"`
	IndexPrice *decimal.Decimal `json:"indexPrice"`
	Timestamp  int64            `json:"timestamp"`
}
