package factor

import "math"

// AttentionResult is the cross-sectional neighbor-heat factor: how much
// attention (volume surge) a symbol's sector peers are drawing, as a proxy
// for attention spillover onto the symbol. Unlike the other factors it
// cannot be computed from one window alone — it needs a completed per-symbol
// pass across the sector, so the scoring engine runs it as a second phase.
type AttentionResult struct {
	Value     float64 `json:"value"` // 0..1, sigmoid of mean peer z-score
	PeerCount int     `json:"peer_count"`
	Valid     bool    `json:"valid"`
}

// ComputeNeighborHeat derives a symbol's attention-spillover score from the
// phase-1 attention proxies (5-day volume ratios) of all scored symbols.
// sectors maps symbol to sector; symbols without a sector, or with fewer
// than two scored peers, get Valid=false and the factor is skipped.
func ComputeNeighborHeat(symbol string, attention map[string]float64, sectors map[string]string) AttentionResult {
	sector, ok := sectors[symbol]
	if !ok || sector == "" {
		return AttentionResult{Valid: false}
	}

	// Cross-sectional mean/std over every scored symbol, for z-scoring.
	var sum, sumSq float64
	n := 0
	for _, v := range attention {
		sum += v
		sumSq += v * v
		n++
	}
	if n < 3 {
		return AttentionResult{Valid: false}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance <= 0 {
		return AttentionResult{Valid: false}
	}
	std := math.Sqrt(variance)

	peerSum := 0.0
	peers := 0
	for peer, v := range attention {
		if peer == symbol || sectors[peer] != sector {
			continue
		}
		peerSum += (v - mean) / std
		peers++
	}
	if peers < 2 {
		return AttentionResult{Valid: false, PeerCount: peers}
	}

	meanZ := peerSum / float64(peers)
	return AttentionResult{
		Value:     1.0 / (1.0 + math.Exp(-meanZ)),
		PeerCount: peers,
		Valid:     true,
	}
}
