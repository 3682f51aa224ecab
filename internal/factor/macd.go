package factor

import "github.com/sawpanic/equityrun/internal/domain"

// MACDResult carries the MACD line, signal line and histogram for the last
// bar of a window, plus the crossover features scoring consumes.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Hist      float64 `json:"hist"`
	HistSlope float64 `json:"hist_slope"` // hist[t] - hist[t-1], crossover recency proxy
	CrossedUp bool    `json:"crossed_up"` // histogram flipped <=0 to >0 on the last bar
	Valid     bool    `json:"valid"`
	Bars      int     `json:"bars"`
}

// ComputeMACD computes the standard fast/slow EMA difference with a signal
// EMA. The window must cover the slow period plus the signal period with
// some warm-up; anything shorter returns Valid=false.
func ComputeMACD(w domain.PriceWindow, fast, slow, signal int) MACDResult {
	minBars := slow + signal + 5
	if !usable(w, minBars) {
		return MACDResult{Valid: false, Bars: w.Len()}
	}

	closes := w.Closes()
	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := emaSeries(macdLine[slow-1:], signal)

	// Align: signalLine[k] corresponds to macdLine[slow-1+k].
	n := len(signalLine)
	lastMACD := macdLine[len(macdLine)-1]
	lastSignal := signalLine[n-1]
	prevMACD := macdLine[len(macdLine)-2]
	prevSignal := signalLine[n-2]

	hist := lastMACD - lastSignal
	prevHist := prevMACD - prevSignal

	return MACDResult{
		MACD:      lastMACD,
		Signal:    lastSignal,
		Hist:      hist,
		HistSlope: hist - prevHist,
		CrossedUp: prevHist <= 0 && hist > 0,
		Valid:     true,
		Bars:      w.Len(),
	}
}

// emaSeries returns the full EMA series for values with the given period.
// The first period-1 entries are seeded with a simple average ramp.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)

	// Seed with SMA over the first min(period, len) values.
	seedN := period
	if seedN > len(values) {
		seedN = len(values)
	}
	sum := 0.0
	for i := 0; i < seedN; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	for i := seedN; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}
