package factor

import (
	"math"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Momentum returns the n-bar simple return of the last close.
func Momentum(w domain.PriceWindow, n int) (float64, bool) {
	if !usable(w, n+1) {
		return 0, false
	}
	closes := w.Closes()
	prev := closes[len(closes)-1-n]
	if prev <= 0 {
		return 0, false
	}
	return closes[len(closes)-1]/prev - 1.0, true
}

// VolumeRatio compares the last bar's volume to the mean of the preceding
// n bars.
func VolumeRatio(w domain.PriceWindow, n int) (float64, bool) {
	if !usable(w, n+1) {
		return 0, false
	}
	vols := w.Volumes()
	last := len(vols) - 1
	base := 0.0
	for i := last - n; i < last; i++ {
		base += vols[i]
	}
	base /= float64(n)
	if base <= 0 {
		return 0, false
	}
	return vols[last] / base, true
}

// MAGap returns last close relative to its n-bar moving average, as a
// fractional gap.
func MAGap(w domain.PriceWindow, n int) (float64, bool) {
	if !usable(w, n+5) {
		return 0, false
	}
	closes := w.Closes()
	ma := sma(closes, n)
	if ma <= 0 {
		return 0, false
	}
	return closes[len(closes)-1]/ma - 1.0, true
}

// MAStack returns 1 when close > MA(fast) > MA(slow), else 0 — the bullish
// moving-average alignment the mid and long horizons reward.
func MAStack(w domain.PriceWindow, fast, slow int) (float64, bool) {
	if !usable(w, slow+5) {
		return 0, false
	}
	closes := w.Closes()
	last := closes[len(closes)-1]
	f := sma(closes, fast)
	s := sma(closes, slow)
	if last > f && f > s {
		return 1.0, true
	}
	return 0.0, true
}

// Volatility is the standard deviation of simple returns over the trailing
// n bars.
func Volatility(w domain.PriceWindow, n int) (float64, bool) {
	if !usable(w, n+5) {
		return 0, false
	}
	closes := w.Closes()
	rets := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			return 0, false
		}
		rets = append(rets, closes[i]/closes[i-1]-1.0)
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	return math.Sqrt(variance), true
}

// MaxDrawdown is the worst peak-to-trough decline over the trailing n bars,
// returned as a negative fraction (0 means no drawdown).
func MaxDrawdown(w domain.PriceWindow, n int) (float64, bool) {
	if !usable(w, n+5) {
		return 0, false
	}
	closes := w.Closes()
	tail := closes[len(closes)-n:]
	peak := tail[0]
	worst := 0.0
	for _, c := range tail {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			dd := c/peak - 1.0
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst, true
}

// sma is the n-bar simple moving average ending at the last element.
func sma(values []float64, n int) float64 {
	sum := 0.0
	for i := len(values) - n; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(n)
}
