package domain

import "slices"

const (
	LiquidityWeight      = 0.7
	VolumeWeight         = 0.3
	PreferredQuoteFactor = 1.2

	DefaultMinLiquidityUSD = 10_000
	DefaultMinVolumeUSD    = 5_000
)

// DefaultPreferredQuotes are the stable quote legs favoured during pair selection
var DefaultPreferredQuotes = []string{"USDC", "USDT"}

// PairCandidate is a DEX trading pair considered for a price quote
type PairCandidate struct {
	ChainID      string
	DEXID        string
	PairAddress  string
	BaseSymbol   string
	QuoteSymbol  string
	LiquidityUSD float64
	Volume24hUSD float64
	PriceUSD     string
	Score        float64
}

// PairCriteria filters and biases pair selection
type PairCriteria struct {
	MinLiquidityUSD float64
	MinVolumeUSD    float64
	PreferredQuotes []string
}

// DefaultPairCriteria returns the thresholds used by the refresh job
func DefaultPairCriteria() PairCriteria {
	return PairCriteria{
		MinLiquidityUSD: DefaultMinLiquidityUSD,
		MinVolumeUSD:    DefaultMinVolumeUSD,
		PreferredQuotes: DefaultPreferredQuotes,
	}
}

// Qualifies reports whether the pair passes both thresholds
func (c PairCriteria) Qualifies(p PairCandidate) bool {
	return p.LiquidityUSD >= c.MinLiquidityUSD && p.Volume24hUSD >= c.MinVolumeUSD
}

// ScorePair weights liquidity and volume, boosted for preferred quote assets
func (c PairCriteria) ScorePair(p PairCandidate) float64 {
	score := p.LiquidityUSD*LiquidityWeight + p.Volume24hUSD*VolumeWeight
	if slices.Contains(c.PreferredQuotes, p.QuoteSymbol) {
		score *= PreferredQuoteFactor
	}
	return score
}

// SelectBestPair returns the highest scoring qualifying pair.
// Ties keep the first candidate encountered.
func SelectBestPair(pairs []PairCandidate, criteria PairCriteria) (PairCandidate, bool) {
	var (
		best      PairCandidate
		bestScore float64
		found     bool
	)

	for _, p := range pairs {
		if !criteria.Qualifies(p) {
			continue
		}

		score := criteria.ScorePair(p)
		if score > bestScore {
			bestScore = score
			best = p
			best.Score = score
			found = true
		}
	}

	return best, found
}
