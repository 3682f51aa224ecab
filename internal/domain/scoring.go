package domain

import "time"

// Horizon is the intended holding-period bucket for a recommendation.
type Horizon string

const (
	HorizonShort Horizon = "short" // 2-5 trading days
	HorizonMid   Horizon = "mid"   // 2-8 weeks
	HorizonLong  Horizon = "long"  // 9+ weeks
)

// Horizons lists all horizons in scoring order.
func Horizons() []Horizon {
	return []Horizon{HorizonShort, HorizonMid, HorizonLong}
}

// Valid reports whether h is a known horizon.
func (h Horizon) Valid() bool {
	switch h {
	case HorizonShort, HorizonMid, HorizonLong:
		return true
	}
	return false
}

// FactorScore is one factor's output for one symbol. It is a pure function
// of a PriceWindow (plus cross-sectional context for the attention factor)
// and is recomputed every pass, never mutated.
type FactorScore struct {
	Symbol     string    `json:"symbol"`
	Factor     string    `json:"factor"`
	Value      float64   `json:"value"`
	Valid      bool      `json:"valid"`
	ComputedAt time.Time `json:"computed_at"`
}

// FactorSet is the per-symbol collection of factor scores for one pass.
type FactorSet map[string]FactorScore

// Value returns the factor's value and whether it is usable.
func (fs FactorSet) Value(name string) (float64, bool) {
	s, ok := fs[name]
	if !ok || !s.Valid {
		return 0, false
	}
	return s.Value, true
}

// CompositeScore is the weighted combination of factor percentiles for one
// (symbol, horizon) in one scoring pass, on a 0-100 scale.
type CompositeScore struct {
	Symbol     string             `json:"symbol"`
	Horizon    Horizon            `json:"horizon"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Breakdown  map[string]float64 `json:"breakdown"` // factor -> weighted contribution
	BoostDelta float64            `json:"boost_delta,omitempty"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Candidate is one selected entry of a horizon's ranked output. Candidates
// are ephemeral: rebuilt from scratch every pass.
type Candidate struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name,omitempty"`
	Horizon      Horizon `json:"horizon"`
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	Confidence   float64 `json:"confidence"`
	Price        float64 `json:"price,omitempty"`
	PctChange    float64 `json:"pct_change,omitempty"`
	VolumeRatio  float64 `json:"volume_ratio,omitempty"`
	TurnoverRate float64 `json:"turnover_rate,omitempty"`
	Reason       string  `json:"reason"`
}
