package scoring

import "sort"

// rankPercentile maps each entry's raw value to [0,1] by cross-sectional
// rank: the worst value gets 0, the best 1, ties share their average rank.
// lowerBetter inverts the ordering. A singleton set maps to 0.5 — with no
// peers a value carries no ranking information.
func rankPercentile(values map[string]float64, lowerBetter bool) map[string]float64 {
	n := len(values)
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		for k := range values {
			out[k] = 0.5
		}
		return out
	}

	type pair struct {
		symbol string
		value  float64
	}
	pairs := make([]pair, 0, n)
	for s, v := range values {
		pairs = append(pairs, pair{s, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].value != pairs[j].value {
			if lowerBetter {
				return pairs[i].value > pairs[j].value
			}
			return pairs[i].value < pairs[j].value
		}
		return pairs[i].symbol < pairs[j].symbol // stable across runs
	})

	// Average-rank ties so equal values get equal percentiles.
	denom := float64(n - 1)
	for i := 0; i < n; {
		j := i
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		avgRank := float64(i+j-1) / 2.0
		for k := i; k < j; k++ {
			out[pairs[k].symbol] = avgRank / denom
		}
		i = j
	}
	return out
}
