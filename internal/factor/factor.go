// Package factor computes technical and statistical factors over price
// windows. Every function is deterministic, never mutates its input window,
// and reports Valid=false instead of fabricating a value when the window is
// shorter than the factor's minimum lookback or too gappy.
package factor

import "github.com/sawpanic/equityrun/internal/domain"

// Canonical factor names used across scoring weight tables, breakdowns and
// candidate reasons.
const (
	NameMomentum3    = "momentum_3d"
	NameMomentum20   = "momentum_20d"
	NameMomentum120  = "momentum_120d"
	NameMACDSlope    = "macd_hist_slope"
	NameRSI          = "rsi_14"
	NameRSIBand      = "rsi_band"
	NameBollPosition = "boll_position"
	NameBollWidth    = "boll_width"
	NameVolumeRatio5 = "volume_ratio_5d"
	NameDrawdown20   = "drawdown_20d"
	NameDrawdown120  = "drawdown_120d"
	NameMAStack2060  = "ma_stack_20_60"
	NameMAStack60120 = "ma_stack_60_120"
	NameMAGap20      = "ma_gap_20"
	NameMAGap120     = "ma_gap_120"
	NameVolatility20 = "volatility_20d"
	NameVolatility60 = "volatility_60d"
	NamePATV         = "patv"
	NameILLIQ        = "illiq"
	NameAttention    = "neighbor_attention"
)

// maxGapRatio is the fraction of gapped bar pairs above which a window is
// considered too sparse for any factor.
const maxGapRatio = 0.1

// usable reports whether the window has at least minBars bars and an
// acceptable gap density.
func usable(w domain.PriceWindow, minBars int) bool {
	if w.Len() < minBars {
		return false
	}
	return float64(w.GapCount) <= maxGapRatio*float64(w.Len())
}
