package factor

import "github.com/sawpanic/equityrun/internal/domain"

// RSIResult is the Wilder-smoothed relative strength index for the last bar.
type RSIResult struct {
	Value      float64 `json:"value"`
	Overbought bool    `json:"overbought"`
	Oversold   bool    `json:"oversold"`
	Valid      bool    `json:"valid"`
	Bars       int     `json:"bars"`
}

// ComputeRSI calculates RSI over the given period with Wilder smoothing.
// Overbought/oversold flags use the supplied thresholds (default 70/30 in
// config).
func ComputeRSI(w domain.PriceWindow, period int, overbought, oversold float64) RSIResult {
	if !usable(w, period+1) {
		return RSIResult{Valid: false, Bars: w.Len()}
	}

	closes := w.Closes()
	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
	}

	rsi := 100.0
	if avgLoss > 0 {
		rs := avgGain / avgLoss
		rsi = 100.0 - (100.0 / (1.0 + rs))
	}

	return RSIResult{
		Value:      rsi,
		Overbought: rsi >= overbought,
		Oversold:   rsi <= oversold,
		Valid:      true,
		Bars:       w.Len(),
	}
}

// RSIBandScore maps an RSI value to a 0-1 score that is 1.0 inside
// [low, high] and decays linearly outside, hitting zero 30 points away.
// Mid and long horizon weight tables use it to prefer a comfort band
// instead of raw extremity.
func RSIBandScore(rsi, low, high float64) float64 {
	if rsi >= low && rsi <= high {
		return 1.0
	}
	var dist float64
	if rsi < low {
		dist = low - rsi
	} else {
		dist = rsi - high
	}
	score := 1.0 - dist/30.0
	if score < 0 {
		return 0
	}
	return score
}
