// Package strategy ranks symbols by short-window momentum and walks the ranking
// until a candidate's rate of change clears the activation threshold.
package strategy

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
)

// DefaultCascadeDepth is how many ranked candidates are inspected per cycle.
const DefaultCascadeDepth = 3

// Inspector fetches the metadata and indicator snapshot of one candidate.
type Inspector interface {
	Inspect(ctx context.Context, symbol string) (model.Inspection, error)
}

// Selection is the candidate chosen for the next buy.
type Selection struct {
	Symbol           string
	Rank             int
	CumulativeReturn decimal.Decimal
	model.Inspection
}

// Selector walks the momentum ranking.
type Selector struct {
	Inspector Inspector
	MinROC    float64
	Depth     int

	log zerolog.Logger
}

// NewSelector creates a Selector; a depth below one uses DefaultCascadeDepth.
func NewSelector(inspector Inspector, minROC float64, depth int, log zerolog.Logger) *Selector {
	if depth < 1 {
		depth = DefaultCascadeDepth
	}
	return &Selector{
		Inspector: inspector,
		MinROC:    minROC,
		Depth:     depth,
		log:       log.With().Str("component", "selector").Logger(),
	}
}

// Select ranks candidates and returns the first of the top Depth whose ROC is at
// or above MinROC. A nil Selection with a nil error means no opportunity this
// cycle. A candidate that cannot be inspected counts against the depth and the
// walk moves on.
func (s *Selector) Select(ctx context.Context, candidates []model.SymbolCandidate) (*Selection, error) {
	ranked := Rank(candidates)
	for i := 0; i < s.Depth && i < len(ranked); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := ranked[i]
		insp, err := s.Inspector.Inspect(ctx, c.Symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", c.Symbol).Int("rank", i).Msg("inspect failed, trying next candidate")
			continue
		}
		ev := s.log.Info().Str("symbol", c.Symbol).Int("rank", i).
			Str("cumulative_return", c.CumulativeReturn.String()).Float64("roc", insp.Indicators.ROC)
		if insp.Indicators.ROC >= s.MinROC {
			ev.Msg("candidate selected")
			return &Selection{
				Symbol:           c.Symbol,
				Rank:             i,
				CumulativeReturn: c.CumulativeReturn,
				Inspection:       insp,
			}, nil
		}
		ev.Float64("min_roc", s.MinROC).Msg("candidate below threshold")
	}
	return nil, nil
}
