package factor

import "github.com/sawpanic/equityrun/internal/domain"

// PATVResult measures persistent abnormal trading volume. Strength is
// last-bar volume abnormality scaled by how persistently volume has run
// above normal recently; lower is better for ranking (persistent abnormal
// volume is fragile). Reversal flags the contraction-then-expansion shape:
// a quiet stretch followed by a sudden volume burst on the last bar.
type PATVResult struct {
	Strength     float64 `json:"strength"`
	LastRatio    float64 `json:"last_ratio"`    // volume / MA(volume, window)
	PersistRatio float64 `json:"persist_ratio"` // share of recent bars above the abnormal threshold
	Reversal     bool    `json:"reversal"`
	Valid        bool    `json:"valid"`
	Bars         int     `json:"bars"`
}

const patvAbnormalThreshold = 1.5

// ComputePATV evaluates volume abnormality over a moving-average window and
// its persistence over the trailing persist bars.
func ComputePATV(w domain.PriceWindow, window, persist int) PATVResult {
	if !usable(w, window+persist+2) {
		return PATVResult{Valid: false, Bars: w.Len()}
	}

	vols := w.Volumes()

	// ratio[i] = volume[i] / MA(volume, window) ending at i, for the tail
	// persist bars plus the final bar.
	ratioAt := func(i int) (float64, bool) {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += vols[j]
		}
		ma := sum / float64(window)
		if ma <= 0 {
			return 0, false
		}
		return vols[i] / ma, true
	}

	last := len(vols) - 1
	lastRatio, ok := ratioAt(last)
	if !ok {
		return PATVResult{Valid: false, Bars: w.Len()}
	}

	abnormal := 0
	counted := 0
	for i := last - persist + 1; i <= last; i++ {
		r, ok := ratioAt(i)
		if !ok {
			continue
		}
		counted++
		if r > patvAbnormalThreshold {
			abnormal++
		}
	}
	if counted == 0 {
		return PATVResult{Valid: false, Bars: w.Len()}
	}
	persistRatio := float64(abnormal) / float64(counted)

	// Quiet run-up then a burst on the final bar.
	priorAbnormal := 0
	priorCounted := 0
	for i := last - persist + 1; i < last; i++ {
		r, ok := ratioAt(i)
		if !ok {
			continue
		}
		priorCounted++
		if r > patvAbnormalThreshold {
			priorAbnormal++
		}
	}
	reversal := false
	if priorCounted > 0 {
		priorRatio := float64(priorAbnormal) / float64(priorCounted)
		reversal = priorRatio < 0.3 && lastRatio > patvAbnormalThreshold
	}

	return PATVResult{
		Strength:     lastRatio * (0.5 + persistRatio),
		LastRatio:    lastRatio,
		PersistRatio: persistRatio,
		Reversal:     reversal,
		Valid:        true,
		Bars:         w.Len(),
	}
}
