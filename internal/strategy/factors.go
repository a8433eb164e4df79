package strategy

import (
	"sort"

	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
)

// returnPlaces bounds the precision of each per-step percentage change.
const returnPlaces = 16

// CumulativeReturn compounds the step-to-step percentage changes of prices:
// prod(1 + pct_change) - 1. Fewer than two prices yield zero. A zero price
// contributes no step.
func CumulativeReturn(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) < 2 {
		return decimal.Zero
	}
	acc := decimal.NewFromInt(1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev.IsZero() {
			continue
		}
		change := prices[i].Sub(prev).DivRound(prev, returnPlaces)
		acc = acc.Mul(decimal.NewFromInt(1).Add(change))
	}
	return acc.Sub(decimal.NewFromInt(1))
}

// Rank fills in each candidate's cumulative return and orders the candidates by
// it, best first. Ties keep their input order.
func Rank(candidates []model.SymbolCandidate) []model.SymbolCandidate {
	ranked := make([]model.SymbolCandidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].CumulativeReturn = CumulativeReturn(ranked[i].Prices)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CumulativeReturn.GreaterThan(ranked[j].CumulativeReturn)
	})
	return ranked
}
