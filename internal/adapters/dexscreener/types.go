package dexscreener

// tokenPairsResponse is the body of GET /tokens/{address}
type tokenPairsResponse struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []pairData `json:"pairs"`
}

type pairData struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   pairToken  `json:"baseToken"`
	QuoteToken  pairToken  `json:"quoteToken"`
	PriceUsd    string     `json:"priceUsd"`
	Volume      pairVolume `json:"volume"`
	Liquidity   *liquidity `json:"liquidity"` // absent for some pools
}

type pairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type pairVolume struct {
	H24 float64 `json:"h24"`
}

type liquidity struct {
	Usd float64 `json:"usd"`
}
