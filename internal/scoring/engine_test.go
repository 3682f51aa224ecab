package scoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/factor"
)

func mkInput(t *testing.T, symbol string, closes, volumes []float64) Input {
	t.Helper()
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		vol := 1_000_000.0
		if volumes != nil {
			vol = volumes[i]
		}
		bars[i] = domain.Bar{
			Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c,
			Volume: vol, Turnover: vol * c,
		}
	}
	w, err := domain.NewPriceWindow(symbol, bars)
	require.NoError(t, err)
	return Input{
		Quote: domain.QuoteSnapshot{
			Symbol: symbol, Name: symbol, Timestamp: start.AddDate(0, 0, len(closes)),
			Price: closes[len(closes)-1], Turnover: 1e9,
		},
		Window: w,
	}
}

func flatCloses(n int, level float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level
	}
	return out
}

// oversoldRecovery builds a long decline with a three-bar recovery and a
// final volume burst: oversold RSI, deep drawdown, low band position, and a
// rising MACD histogram all at once.
func oversoldRecovery(n int) (closes, volumes []float64) {
	closes = make([]float64, n)
	volumes = make([]float64, n)
	price := 40.0
	for i := 0; i < n; i++ {
		if i >= n-3 {
			price += 0.1
		} else {
			price -= 0.2
		}
		closes[i] = price
		volumes[i] = 1_000_000
	}
	volumes[n-1] = 3_000_000
	return closes, volumes
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultWeights(), cfg, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func shortUniverse(t *testing.T, peers int) []Input {
	inputs := make([]Input, 0, peers+1)
	closes, volumes := oversoldRecovery(130)
	inputs = append(inputs, mkInput(t, "sh600999", closes, volumes))
	for i := 0; i < peers; i++ {
		inputs = append(inputs, mkInput(t, fmt.Sprintf("sz00000%d", i), flatCloses(130, 10.0+float64(i)), nil))
	}
	return inputs
}

func TestRankPercentile(t *testing.T) {
	values := map[string]float64{"a": 1, "b": 2, "c": 3}
	pct := rankPercentile(values, false)
	assert.Equal(t, 0.0, pct["a"])
	assert.Equal(t, 0.5, pct["b"])
	assert.Equal(t, 1.0, pct["c"])

	inv := rankPercentile(values, true)
	assert.Equal(t, 1.0, inv["a"])
	assert.Equal(t, 0.0, inv["c"])
}

func TestRankPercentileTiesShareRank(t *testing.T) {
	values := map[string]float64{"a": 1, "b": 2, "c": 2, "d": 3}
	pct := rankPercentile(values, false)
	assert.Equal(t, 0.0, pct["a"])
	assert.Equal(t, 0.5, pct["b"])
	assert.Equal(t, 0.5, pct["c"])
	assert.Equal(t, 1.0, pct["d"])
}

func TestRankPercentileSingleton(t *testing.T) {
	pct := rankPercentile(map[string]float64{"only": 42}, false)
	assert.Equal(t, 0.5, pct["only"])
	assert.Empty(t, rankPercentile(nil, false))
}

func TestDefaultWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())
}

func TestWeightsValidateRejectsBadTables(t *testing.T) {
	bad := HorizonWeights{domain.HorizonShort: {{Factor: "x", Weight: 0.7}}}
	assert.Error(t, bad.Validate(), "sum below 1")

	dup := HorizonWeights{domain.HorizonShort: {
		{Factor: "x", Weight: 0.5}, {Factor: "x", Weight: 0.5},
	}}
	assert.Error(t, dup.Validate(), "duplicate factor")

	unknown := HorizonWeights{"weekly": {{Factor: "x", Weight: 1.0}}}
	assert.Error(t, unknown.Validate(), "unknown horizon")
}

func TestWeightsMergeOverlaysSingleHorizon(t *testing.T) {
	override := HorizonWeights{domain.HorizonShort: {{Factor: factor.NameRSI, Weight: 1.0, LowerBetter: true}}}
	merged := DefaultWeights().Merge(override)
	require.NoError(t, merged.Validate())
	assert.Len(t, merged[domain.HorizonShort], 1)
	assert.Len(t, merged[domain.HorizonMid], 5)
}

func TestNewEngineRejectsUnknownBoost(t *testing.T) {
	_, err := NewEngine(DefaultWeights(), Config{Boosts: []BoostKind{"momentum-chase"}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOversoldRecoveryTopsShortHorizon(t *testing.T) {
	e := newTestEngine(t, Config{})
	res, err := e.Score(context.Background(), shortUniverse(t, 5), nil)
	require.NoError(t, err)

	selected := res.Selected[domain.HorizonShort]
	require.NotEmpty(t, selected)
	top := selected[0]
	assert.Equal(t, "sh600999", top.Symbol)
	assert.Greater(t, top.Score, 80.0)
	assert.Equal(t, 1, top.Rank)
	assert.NotEmpty(t, top.Reason)
	assert.Zero(t, res.Scores[domain.HorizonShort][0].BoostDelta)
}

func TestScoreDeterministic(t *testing.T) {
	inputs := shortUniverse(t, 5)
	e := newTestEngine(t, Config{})

	first, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)
	second, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)

	for _, h := range domain.Horizons() {
		require.Equal(t, len(first.Scores[h]), len(second.Scores[h]))
		for i := range first.Scores[h] {
			assert.Equal(t, first.Scores[h][i].Symbol, second.Scores[h][i].Symbol)
			assert.Equal(t, first.Scores[h][i].Score, second.Scores[h][i].Score)
			assert.Equal(t, first.Scores[h][i].Confidence, second.Scores[h][i].Confidence)
		}
	}
}

func TestSelectionBoundsAndOrdering(t *testing.T) {
	inputs := shortUniverse(t, 9) // ten eligible symbols
	e := newTestEngine(t, Config{ConfidenceFloor: 0.01})

	res, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)

	selected := res.Selected[domain.HorizonShort]
	assert.LessOrEqual(t, len(selected), 5)
	seen := make(map[string]bool)
	for i, c := range selected {
		assert.False(t, seen[c.Symbol], "duplicate symbol %s", c.Symbol)
		seen[c.Symbol] = true
		assert.Equal(t, i+1, c.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, selected[i-1].Score, c.Score)
		}
	}
}

func TestShallowWindowsExcludedFromDeepHorizons(t *testing.T) {
	// 130 bars clears the short minimum only.
	inputs := shortUniverse(t, 4)
	e := newTestEngine(t, Config{})

	res, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Scores[domain.HorizonShort])
	assert.Empty(t, res.Scores[domain.HorizonMid])
	assert.Empty(t, res.Scores[domain.HorizonLong])
}

func TestTooShortWindowNeverScored(t *testing.T) {
	inputs := []Input{mkInput(t, "sh600001", flatCloses(30, 10), nil)}
	e := newTestEngine(t, Config{})
	res, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)
	for _, h := range domain.Horizons() {
		assert.Empty(t, res.Scores[h])
	}
}

func TestTieBrokenByLiquidity(t *testing.T) {
	closes := make([]float64, 130)
	for i := range closes {
		// Identical oscillation for both symbols keeps every price factor
		// tied while producing non-zero returns for ILLIQ.
		closes[i] = 10.0 + 0.1*float64(i%3)
	}
	thinVol := make([]float64, 130)
	deepVol := make([]float64, 130)
	for i := range thinVol {
		thinVol[i] = 100_000
		deepVol[i] = 50_000_000
	}
	inputs := []Input{
		mkInput(t, "sh600001", closes, thinVol),
		mkInput(t, "sh600002", closes, deepVol),
	}
	// Identical prices give identical composites; ILLIQ decides the order.
	e := newTestEngine(t, Config{ConfidenceFloor: 0.001})
	res, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)

	scores := res.Scores[domain.HorizonShort]
	require.Len(t, scores, 2)
	assert.Equal(t, scores[0].Score, scores[1].Score)
	assert.Equal(t, "sh600002", scores[0].Symbol, "more liquid name wins the tie")
}

func TestClampBoosts(t *testing.T) {
	assert.Equal(t, 0.0, clampBoosts(nil))
	assert.Equal(t, 8.0, clampBoosts(map[BoostKind]float64{BoostVolumeReversal: 50}))
	assert.Equal(t, -8.0, clampBoosts(map[BoostKind]float64{BoostLiquidity: -50}))
	assert.Equal(t, 15.0, clampBoosts(map[BoostKind]float64{
		BoostVolumeReversal: 8, BoostLiquidity: 8, BoostAttention: 8,
	}))
}

func TestLiquidityBoostSkipsMissingPercentile(t *testing.T) {
	e := newTestEngine(t, Config{Boosts: []BoostKind{BoostLiquidity}})
	s := &symbolState{factors: domain.FactorSet{}}

	// A symbol with no ILLIQ must get no liquidity adjustment at all, not
	// the maximum thinness penalty a zero percentile would imply.
	raw := e.boostsFor(s, 0, false)
	_, present := raw[BoostLiquidity]
	assert.False(t, present)

	raw = e.boostsFor(s, 0, true)
	assert.Equal(t, -perBoostCap, raw[BoostLiquidity])
}

func TestBoostDeltaBounded(t *testing.T) {
	inputs := shortUniverse(t, 5)
	e := newTestEngine(t, Config{Boosts: []BoostKind{BoostVolumeReversal, BoostLiquidity}})

	res, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)
	for _, cs := range res.Scores[domain.HorizonShort] {
		assert.LessOrEqual(t, cs.BoostDelta, totalBoostCap)
		assert.GreaterOrEqual(t, cs.BoostDelta, -totalBoostCap)
		assert.LessOrEqual(t, cs.Score, 100.0)
		assert.GreaterOrEqual(t, cs.Score, 0.0)
	}
}

func TestAttentionBoostNeedsSectorMap(t *testing.T) {
	inputs := shortUniverse(t, 5)
	e := newTestEngine(t, Config{Boosts: []BoostKind{BoostAttention}})

	// No sector map: phase 2 is skipped, boosts collapse to zero.
	res, err := e.Score(context.Background(), inputs, nil)
	require.NoError(t, err)
	for _, cs := range res.Scores[domain.HorizonShort] {
		assert.Zero(t, cs.BoostDelta)
	}

	sectors := make(map[string]string)
	for _, in := range inputs {
		sectors[in.Quote.Symbol] = "bank"
	}
	res, err = e.Score(context.Background(), inputs, sectors)
	require.NoError(t, err)
	nonZero := false
	for _, cs := range res.Scores[domain.HorizonShort] {
		if cs.BoostDelta != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero, "sector map should enable attention boosts")
}

func TestSigmoidConfidence(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoidConfidence(60), 1e-9)
	assert.Greater(t, sigmoidConfidence(85), 0.95)
	assert.Less(t, sigmoidConfidence(35), 0.05)
}

func TestScoreCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, Config{})
	_, err := e.Score(ctx, shortUniverse(t, 5), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
