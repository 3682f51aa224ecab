package domain

import (
	"fmt"
	"sort"
	"time"
)

// BookLevel is one price level of the bid/ask ladder attached to a quote.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// QuoteSnapshot is the latest observed state of one symbol. A snapshot
// supersedes the stored one only when its timestamp is strictly newer;
// arrival order is irrelevant (see quotecache).
type QuoteSnapshot struct {
	Symbol       string      `json:"symbol"`
	Name         string      `json:"name,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Price        float64     `json:"price"`
	Open         float64     `json:"open"`
	PrevClose    float64     `json:"prev_close"`
	High         float64     `json:"high"`
	Low          float64     `json:"low"`
	Volume       float64     `json:"volume"`
	Turnover     float64     `json:"turnover"`
	Bids         []BookLevel `json:"bids,omitempty"`
	Asks         []BookLevel `json:"asks,omitempty"`
	PctChange    float64     `json:"pct_change"`
	VolumeRatio  float64     `json:"volume_ratio,omitempty"`
	TurnoverRate float64     `json:"turnover_rate,omitempty"`
}

// Bar is a single OHLCV bar.
type Bar struct {
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Turnover float64   `json:"turnover"`
}

// PriceWindow is a bounded, strictly time-ordered lookback of bars for one
// symbol. Construction rejects out-of-order and duplicate timestamps; gaps
// are tolerated but recorded via GapCount so factors can refuse windows that
// are too sparse.
type PriceWindow struct {
	Symbol   string
	Bars     []Bar
	GapCount int
}

// NewPriceWindow validates bar ordering and builds a window. Bars must be
// sorted ascending with strictly increasing timestamps.
func NewPriceWindow(symbol string, bars []Bar) (PriceWindow, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return PriceWindow{}, fmt.Errorf("price window for %s: bar %d timestamp %s not after %s",
				symbol, i, bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return PriceWindow{
		Symbol:   symbol,
		Bars:     bars,
		GapCount: countGaps(bars),
	}, nil
}

// NewPriceWindowSorted sorts bars by time, drops duplicate timestamps
// (keeping the later-arriving bar), and builds a window. Use for provider
// payloads whose ordering is not guaranteed.
func NewPriceWindowSorted(symbol string, bars []Bar) PriceWindow {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	deduped := sorted[:0]
	for _, b := range sorted {
		if n := len(deduped); n > 0 && !b.Time.After(deduped[n-1].Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return PriceWindow{
		Symbol:   symbol,
		Bars:     deduped,
		GapCount: countGaps(deduped),
	}
}

// countGaps counts adjacent bar pairs more than 4 calendar days apart.
// Weekends are at most 3 days between trading sessions, so anything wider
// is a data gap (halt, missing rows) worth recording.
func countGaps(bars []Bar) int {
	gaps := 0
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.Sub(bars[i-1].Time) > 4*24*time.Hour {
			gaps++
		}
	}
	return gaps
}

// Len returns the number of bars in the window.
func (w PriceWindow) Len() int { return len(w.Bars) }

// Closes returns the close series, oldest first.
func (w PriceWindow) Closes() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume series, oldest first.
func (w PriceWindow) Volumes() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Volume
	}
	return out
}

// Turnovers returns the turnover series, oldest first. Entries may be zero
// when the upstream source does not report turnover.
func (w PriceWindow) Turnovers() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Turnover
	}
	return out
}

// Last returns the most recent bar. ok is false for an empty window.
func (w PriceWindow) Last() (Bar, bool) {
	if len(w.Bars) == 0 {
		return Bar{}, false
	}
	return w.Bars[len(w.Bars)-1], true
}

// TradingDay formats t as the YYYY-MM-DD trading day in the given location.
// It is the day component of the (symbol, day, type) signal key.
func TradingDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
