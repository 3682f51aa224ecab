// Package scoring turns per-symbol factor outputs into horizon composite
// scores on a 0-100 scale, applies bounded preference boosts, and selects
// the top-ranked candidates per horizon.
package scoring

import (
	"fmt"
	"math"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/factor"
)

// WeightSpec is one factor's contribution to a horizon composite.
// LowerBetter inverts the cross-sectional ranking (volatility, illiquidity,
// oversold oscillators).
type WeightSpec struct {
	Factor      string  `yaml:"factor"`
	Weight      float64 `yaml:"weight"`
	LowerBetter bool    `yaml:"lower_better"`
}

// HorizonWeights maps each horizon to its weight table.
type HorizonWeights map[domain.Horizon][]WeightSpec

// MinBars is the minimum window length per horizon; shorter windows keep a
// symbol out of that horizon entirely.
var MinBars = map[domain.Horizon]int{
	domain.HorizonShort: 60,
	domain.HorizonMid:   160,
	domain.HorizonLong:  260,
}

// DefaultWeights returns the built-in tables. The short horizon is
// contrarian: it rewards oversold oscillators recovering on momentum. Mid
// and long reward trend persistence, with volatility penalized.
func DefaultWeights() HorizonWeights {
	return HorizonWeights{
		domain.HorizonShort: {
			{Factor: factor.NameRSI, Weight: 0.25, LowerBetter: true},
			{Factor: factor.NameBollPosition, Weight: 0.20, LowerBetter: true},
			{Factor: factor.NameMACDSlope, Weight: 0.25},
			{Factor: factor.NameVolumeRatio5, Weight: 0.15},
			{Factor: factor.NameDrawdown20, Weight: 0.15, LowerBetter: true},
		},
		domain.HorizonMid: {
			{Factor: factor.NameMomentum20, Weight: 0.26},
			{Factor: factor.NameMAStack2060, Weight: 0.22},
			{Factor: factor.NameMAGap20, Weight: 0.18},
			{Factor: factor.NameVolatility20, Weight: 0.18, LowerBetter: true},
			{Factor: factor.NameRSIBand, Weight: 0.16},
		},
		domain.HorizonLong: {
			{Factor: factor.NameMomentum120, Weight: 0.30},
			{Factor: factor.NameMAStack60120, Weight: 0.22},
			{Factor: factor.NameDrawdown120, Weight: 0.20},
			{Factor: factor.NameVolatility60, Weight: 0.18, LowerBetter: true},
			{Factor: factor.NameMAGap120, Weight: 0.10},
		},
	}
}

const weightSumTolerance = 1e-6

// Validate checks every horizon table: known horizon, positive weights,
// unique factors, sum 1.0 within tolerance.
func (hw HorizonWeights) Validate() error {
	for horizon, specs := range hw {
		if !horizon.Valid() {
			return fmt.Errorf("unknown horizon %q", horizon)
		}
		if len(specs) == 0 {
			return fmt.Errorf("horizon %s: empty weight table", horizon)
		}
		sum := 0.0
		seen := make(map[string]bool, len(specs))
		for _, s := range specs {
			if s.Factor == "" {
				return fmt.Errorf("horizon %s: unnamed factor", horizon)
			}
			if s.Weight <= 0 {
				return fmt.Errorf("horizon %s: factor %s: weight %v must be positive", horizon, s.Factor, s.Weight)
			}
			if seen[s.Factor] {
				return fmt.Errorf("horizon %s: factor %s listed twice", horizon, s.Factor)
			}
			seen[s.Factor] = true
			sum += s.Weight
		}
		if math.Abs(sum-1.0) > weightSumTolerance {
			return fmt.Errorf("horizon %s: weights sum to %v, want 1.0", horizon, sum)
		}
	}
	return nil
}

// Merge overlays configured tables onto the defaults, so a config file can
// replace one horizon without restating the others.
func (hw HorizonWeights) Merge(overrides HorizonWeights) HorizonWeights {
	out := make(HorizonWeights, len(hw))
	for h, specs := range hw {
		out[h] = specs
	}
	for h, specs := range overrides {
		if len(specs) > 0 {
			out[h] = specs
		}
	}
	return out
}
