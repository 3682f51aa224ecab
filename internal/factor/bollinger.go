package factor

import (
	"math"

	"github.com/sawpanic/equityrun/internal/domain"
)

// BollingerResult describes where the last close sits inside the bands and
// how wide the bands are (volatility proxy).
type BollingerResult struct {
	Middle   float64 `json:"middle"`
	Upper    float64 `json:"upper"`
	Lower    float64 `json:"lower"`
	Position float64 `json:"position"` // -1 at lower band, +1 at upper band
	Width    float64 `json:"width"`    // (upper-lower)/middle
	Valid    bool    `json:"valid"`
	Bars     int     `json:"bars"`
}

// ComputeBollinger computes moving-average bands at k standard deviations
// over the given period. Position is clamped to [-1, +1]; closes outside
// the bands saturate rather than extrapolate.
func ComputeBollinger(w domain.PriceWindow, period int, k float64) BollingerResult {
	if !usable(w, period) {
		return BollingerResult{Valid: false, Bars: w.Len()}
	}

	closes := w.Closes()
	tail := closes[len(closes)-period:]

	mean := 0.0
	for _, c := range tail {
		mean += c
	}
	mean /= float64(period)

	variance := 0.0
	for _, c := range tail {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(period)
	std := math.Sqrt(variance)

	upper := mean + k*std
	lower := mean - k*std
	last := closes[len(closes)-1]

	position := 0.0
	if std > 0 {
		position = (last - mean) / (k * std)
	}
	position = math.Max(-1, math.Min(1, position))

	width := 0.0
	if mean > 0 {
		width = (upper - lower) / mean
	}

	return BollingerResult{
		Middle:   mean,
		Upper:    upper,
		Lower:    lower,
		Position: position,
		Width:    width,
		Valid:    true,
		Bars:     w.Len(),
	}
}
