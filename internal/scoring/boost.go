package scoring

import "math"

// BoostKind names one preference strategy. The set is closed: unknown
// strategy names in config are a validation error, not a silent no-op.
type BoostKind string

const (
	BoostVolumeReversal BoostKind = "volume-reversal"
	BoostLiquidity      BoostKind = "liquidity-robustness"
	BoostAttention      BoostKind = "attention-overflow"
)

// KnownBoost reports whether k is a recognized strategy.
func KnownBoost(k BoostKind) bool {
	switch k {
	case BoostVolumeReversal, BoostLiquidity, BoostAttention:
		return true
	}
	return false
}

// Boost caps: no single strategy moves a score by more than perBoostCap
// points, and all strategies together by more than totalBoostCap. Boosts are
// additive on the 0-100 composite and may be negative.
const (
	perBoostCap   = 8.0
	totalBoostCap = 15.0
)

// clampBoosts applies the per-strategy and total caps and returns the net
// delta to add to the base composite.
func clampBoosts(raw map[BoostKind]float64) float64 {
	total := 0.0
	for _, v := range raw {
		total += math.Max(-perBoostCap, math.Min(perBoostCap, v))
	}
	return math.Max(-totalBoostCap, math.Min(totalBoostCap, total))
}

// volumeReversalBoost rewards the contraction-then-expansion volume shape.
func volumeReversalBoost(reversal bool, lastRatio float64) float64 {
	if !reversal {
		return 0
	}
	// Scale with burst size, saturating at the cap.
	return math.Min(perBoostCap, 4.0+lastRatio)
}

// liquidityBoost rewards cross-sectionally liquid names (low ILLIQ
// percentile) and penalizes the thinnest ones.
func liquidityBoost(illiqPercentile float64) float64 {
	// percentile 0 = most illiquid, 1 = most liquid after inversion.
	return (illiqPercentile - 0.5) * 2.0 * perBoostCap
}

// attentionBoost rewards sector attention spillover above the neutral 0.5.
func attentionBoost(heat float64) float64 {
	return (heat - 0.5) * 2.0 * perBoostCap
}
