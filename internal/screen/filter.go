// Package screen is the cheap admission gate in front of scoring: it cuts
// the full universe down to a bounded candidate set using quote-level checks
// only. It removes symbols, never ranks them.
package screen

import (
	"sort"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Config holds the hard floors and bounds of the pre-screen.
type Config struct {
	MinPrice        float64       `yaml:"min_price"`          // penny-stock floor
	MaxPrice        float64       `yaml:"max_price"`          // 0 disables
	MinTurnover     float64       `yaml:"min_turnover"`       // CNY per day
	MaxAbsPctChange float64       `yaml:"max_abs_pct_change"` // skip limit-up/down pins, 0 disables
	MaxCandidates   int           `yaml:"max_candidates"`     // output bound
	MaxQuoteAge     time.Duration `yaml:"max_quote_age"`      // 0 disables; filter tolerates staleness by default
}

// DefaultConfig mirrors a conservative A-share pre-screen.
func DefaultConfig() Config {
	return Config{
		MinPrice:      2.0,
		MinTurnover:   20_000_000,
		MaxCandidates: 300,
	}
}

// Rejection explains why a symbol was dropped, for pass diagnostics.
type Rejection struct {
	Symbol string
	Reason string
}

// Filter admits quotes passing every hard check, caps the result at
// MaxCandidates keeping the highest-turnover names, and reports rejections.
// Risk-flagged names (ST, delisting) are always excluded.
func Filter(quotes []domain.QuoteSnapshot, cfg Config, now time.Time) ([]domain.QuoteSnapshot, []Rejection) {
	admitted := make([]domain.QuoteSnapshot, 0, len(quotes))
	rejections := make([]Rejection, 0)

	reject := func(symbol, reason string) {
		rejections = append(rejections, Rejection{Symbol: symbol, Reason: reason})
	}

	for _, q := range quotes {
		switch {
		case q.Price <= 0:
			reject(q.Symbol, "missing quote")
		case cfg.MaxQuoteAge > 0 && now.Sub(q.Timestamp) > cfg.MaxQuoteAge:
			reject(q.Symbol, "quote too old")
		case q.Price < cfg.MinPrice:
			reject(q.Symbol, "below price floor")
		case cfg.MaxPrice > 0 && q.Price > cfg.MaxPrice:
			reject(q.Symbol, "above price ceiling")
		case q.Turnover < cfg.MinTurnover:
			reject(q.Symbol, "below turnover floor")
		case cfg.MaxAbsPctChange > 0 && abs(q.PctChange) > cfg.MaxAbsPctChange:
			reject(q.Symbol, "pinned at price limit")
		case riskFlagged(q.Name):
			reject(q.Symbol, "risk-flagged name")
		default:
			admitted = append(admitted, q)
		}
	}

	if cfg.MaxCandidates > 0 && len(admitted) > cfg.MaxCandidates {
		sort.SliceStable(admitted, func(i, j int) bool {
			return admitted[i].Turnover > admitted[j].Turnover
		})
		for _, q := range admitted[cfg.MaxCandidates:] {
			reject(q.Symbol, "over candidate cap")
		}
		admitted = admitted[:cfg.MaxCandidates]
	}
	return admitted, rejections
}

// riskFlagged matches special-treatment and delisting-track names.
func riskFlagged(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "ST") || strings.Contains(name, "退")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
