package factor

import (
	"math"

	"github.com/sawpanic/equityrun/internal/domain"
)

// ILLIQResult is an Amihud-style illiquidity proxy: mean absolute return
// per unit of turnover over the lookback. Lower means more liquid. Values
// are scaled by 1e8 so typical A-share turnover magnitudes land in a
// readable range.
type ILLIQResult struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
	Bars  int     `json:"bars"`
}

const illiqScale = 1e8

// ComputeILLIQ averages |ret| / turnover over the trailing window bars.
// When turnover is missing (some upstreams report only volume), volume is
// used as the denominator, which keeps the cross-sectional ordering usable.
func ComputeILLIQ(w domain.PriceWindow, window int) ILLIQResult {
	if !usable(w, window+2) {
		return ILLIQResult{Valid: false, Bars: w.Len()}
	}

	closes := w.Closes()
	turnovers := w.Turnovers()
	vols := w.Volumes()

	sum := 0.0
	counted := 0
	start := len(closes) - window
	for i := start; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 {
			continue
		}
		denom := turnovers[i]
		if denom <= 0 {
			denom = vols[i]
		}
		if denom <= 0 {
			continue
		}
		ret := math.Abs(closes[i]/prev - 1.0)
		sum += ret / denom
		counted++
	}
	if counted == 0 {
		return ILLIQResult{Valid: false, Bars: w.Len()}
	}

	return ILLIQResult{
		Value: sum / float64(counted) * illiqScale,
		Valid: true,
		Bars:  w.Len(),
	}
}
