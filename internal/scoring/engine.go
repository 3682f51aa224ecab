package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/factor"
)

// Input is one candidate entering a scoring pass: its latest quote plus its
// historical window.
type Input struct {
	Quote  domain.QuoteSnapshot
	Window domain.PriceWindow
}

// Config tunes a pass. Zero values use the defaults below.
type Config struct {
	Workers         int         `yaml:"workers"`
	MaxSelect       int         `yaml:"max_select"`       // per-horizon selection cap
	ConfidenceFloor float64     `yaml:"confidence_floor"` // drop candidates below
	Boosts          []BoostKind `yaml:"boosts"`           // enabled preference strategies
}

const (
	defaultWorkers   = 8
	defaultMaxSelect = 5
	defaultConfFloor = 0.35
)

// Engine runs the two-phase scoring pass: per-symbol factors in parallel,
// then the cross-sectional attention phase, then per-horizon composites and
// selection.
type Engine struct {
	weights HorizonWeights
	cfg     Config
	log     zerolog.Logger
}

func NewEngine(weights HorizonWeights, cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}
	for _, b := range cfg.Boosts {
		if !KnownBoost(b) {
			return nil, fmt.Errorf("unknown preference strategy %q", b)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxSelect <= 0 || cfg.MaxSelect > defaultMaxSelect {
		cfg.MaxSelect = defaultMaxSelect
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = defaultConfFloor
	}
	return &Engine{
		weights: weights,
		cfg:     cfg,
		log:     log.With().Str("component", "scoring_engine").Logger(),
	}, nil
}

// PassResult carries every composite plus the selected candidates.
type PassResult struct {
	Scores   map[domain.Horizon][]domain.CompositeScore
	Selected map[domain.Horizon][]domain.Candidate
}

// symbolState is the phase-1 output for one symbol.
type symbolState struct {
	input   Input
	factors domain.FactorSet

	patvReversal  bool
	patvLastRatio float64
}

// Score runs one pass. sectors (symbol -> sector label) enables the
// attention phase; a nil or incomplete map degrades that factor to
// unavailable per symbol, never fails the pass.
func (e *Engine) Score(ctx context.Context, inputs []Input, sectors map[string]string) (*PassResult, error) {
	states, err := e.phase1(ctx, inputs)
	if err != nil {
		return nil, err
	}
	e.phase2(states, sectors)

	now := time.Now()
	result := &PassResult{
		Scores:   make(map[domain.Horizon][]domain.CompositeScore, 3),
		Selected: make(map[domain.Horizon][]domain.Candidate, 3),
	}
	for _, horizon := range domain.Horizons() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores := e.scoreHorizon(horizon, states, now)
		result.Scores[horizon] = scores
		result.Selected[horizon] = e.selectCandidates(horizon, scores, states)
	}
	return result, nil
}

// phase1 computes every window-local factor per symbol on a bounded worker
// pool. Symbols have no cross-dependency here.
func (e *Engine) phase1(ctx context.Context, inputs []Input) (map[string]*symbolState, error) {
	type job struct {
		i  int
		in Input
	}
	jobs := make(chan job)
	out := make([]*symbolState, len(inputs))

	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.i] = e.computeFactors(j.in)
			}
		}()
	}

	for i, in := range inputs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- job{i: i, in: in}:
		}
	}
	close(jobs)
	wg.Wait()

	states := make(map[string]*symbolState, len(out))
	for _, s := range out {
		if s != nil {
			states[s.input.Quote.Symbol] = s
		}
	}
	return states, nil
}

func (e *Engine) computeFactors(in Input) *symbolState {
	w := in.Window
	now := time.Now()
	fs := make(domain.FactorSet, 24)
	put := func(name string, value float64, valid bool) {
		fs[name] = domain.FactorScore{
			Symbol: in.Quote.Symbol, Factor: name,
			Value: value, Valid: valid, ComputedAt: now,
		}
	}
	rsi := factor.ComputeRSI(w, 14, 70, 30)
	put(factor.NameRSI, rsi.Value, rsi.Valid)
	if rsi.Valid {
		put(factor.NameRSIBand, factor.RSIBandScore(rsi.Value, 45, 70), true)
	} else {
		put(factor.NameRSIBand, 0, false)
	}

	macd := factor.ComputeMACD(w, 12, 26, 9)
	put(factor.NameMACDSlope, macd.HistSlope, macd.Valid)

	boll := factor.ComputeBollinger(w, 20, 2.0)
	put(factor.NameBollPosition, boll.Position, boll.Valid)
	put(factor.NameBollWidth, boll.Width, boll.Valid)

	v, ok := factor.VolumeRatio(w, 5)
	put(factor.NameVolumeRatio5, v, ok)
	v, ok = factor.Momentum(w, 3)
	put(factor.NameMomentum3, v, ok)
	v, ok = factor.Momentum(w, 20)
	put(factor.NameMomentum20, v, ok)
	v, ok = factor.Momentum(w, 120)
	put(factor.NameMomentum120, v, ok)
	v, ok = factor.MAGap(w, 20)
	put(factor.NameMAGap20, v, ok)
	v, ok = factor.MAGap(w, 120)
	put(factor.NameMAGap120, v, ok)
	v, ok = factor.MAStack(w, 20, 60)
	put(factor.NameMAStack2060, v, ok)
	v, ok = factor.MAStack(w, 60, 120)
	put(factor.NameMAStack60120, v, ok)
	v, ok = factor.Volatility(w, 20)
	put(factor.NameVolatility20, v, ok)
	v, ok = factor.Volatility(w, 60)
	put(factor.NameVolatility60, v, ok)
	v, ok = factor.MaxDrawdown(w, 20)
	put(factor.NameDrawdown20, v, ok)
	v, ok = factor.MaxDrawdown(w, 120)
	put(factor.NameDrawdown120, v, ok)

	patv := factor.ComputePATV(w, 20, 10)
	put(factor.NamePATV, patv.Strength, patv.Valid)

	illiq := factor.ComputeILLIQ(w, 20)
	put(factor.NameILLIQ, illiq.Value, illiq.Valid)

	return &symbolState{
		input:         in,
		factors:       fs,
		patvReversal:  patv.Valid && patv.Reversal,
		patvLastRatio: patv.LastRatio,
	}
}

// phase2 fills the neighbor-attention factor from phase-1 volume ratios.
// Without sector data the factor simply stays unavailable.
func (e *Engine) phase2(states map[string]*symbolState, sectors map[string]string) {
	if len(sectors) == 0 {
		return
	}
	attention := make(map[string]float64, len(states))
	for sym, s := range states {
		if v, ok := s.factors.Value(factor.NameVolumeRatio5); ok {
			attention[sym] = v
		}
	}
	now := time.Now()
	for sym, s := range states {
		heat := factor.ComputeNeighborHeat(sym, attention, sectors)
		s.factors[factor.NameAttention] = domain.FactorScore{
			Symbol: sym, Factor: factor.NameAttention,
			Value: heat.Value, Valid: heat.Valid, ComputedAt: now,
		}
	}
}

// scoreHorizon builds composites for every symbol whose window is deep
// enough for the horizon. Missing factors shrink the weight mass and with it
// the confidence, never fabricate a percentile.
func (e *Engine) scoreHorizon(horizon domain.Horizon, states map[string]*symbolState, now time.Time) []domain.CompositeScore {
	specs := e.weights[horizon]
	minBars := MinBars[horizon]

	eligible := make([]string, 0, len(states))
	for sym, s := range states {
		if s.input.Window.Len() >= minBars {
			eligible = append(eligible, sym)
		}
	}
	sort.Strings(eligible)
	if len(eligible) == 0 {
		return nil
	}

	// Cross-sectional percentile per factor over the eligible set.
	percentiles := make(map[string]map[string]float64, len(specs))
	for _, spec := range specs {
		values := make(map[string]float64, len(eligible))
		for _, sym := range eligible {
			if v, ok := states[sym].factors.Value(spec.Factor); ok {
				values[sym] = v
			}
		}
		percentiles[spec.Factor] = rankPercentile(values, spec.LowerBetter)
	}
	illiqPct := e.illiqPercentiles(eligible, states)

	scores := make([]domain.CompositeScore, 0, len(eligible))
	for _, sym := range eligible {
		s := states[sym]
		weighted := 0.0
		present := 0.0
		breakdown := make(map[string]float64, len(specs))
		for _, spec := range specs {
			pct, ok := percentiles[spec.Factor][sym]
			if !ok {
				continue
			}
			weighted += spec.Weight * pct
			present += spec.Weight
			breakdown[spec.Factor] = spec.Weight * pct
		}
		if present <= 0 {
			continue
		}
		base := 100.0 * weighted / present
		for f, c := range breakdown {
			breakdown[f] = 100.0 * c / present
		}

		pct, pctOK := illiqPct[sym]
		delta := clampBoosts(e.boostsFor(s, pct, pctOK))
		score := math.Max(0, math.Min(100, base+delta))

		// present (of a table summing to 1.0) is the factor coverage; it
		// scales confidence down when factors were unavailable.
		confidence := present * sigmoidConfidence(score)

		scores = append(scores, domain.CompositeScore{
			Symbol:     sym,
			Horizon:    horizon,
			Score:      score,
			Confidence: confidence,
			Breakdown:  breakdown,
			BoostDelta: delta,
			ComputedAt: now,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return e.illiqOf(states, scores[i].Symbol) < e.illiqOf(states, scores[j].Symbol)
	})
	return scores
}

func (e *Engine) illiqPercentiles(eligible []string, states map[string]*symbolState) map[string]float64 {
	values := make(map[string]float64, len(eligible))
	for _, sym := range eligible {
		if v, ok := states[sym].factors.Value(factor.NameILLIQ); ok {
			values[sym] = v
		}
	}
	// Lower ILLIQ means more liquid, so invert.
	return rankPercentile(values, true)
}

func (e *Engine) illiqOf(states map[string]*symbolState, sym string) float64 {
	if v, ok := states[sym].factors.Value(factor.NameILLIQ); ok {
		return v
	}
	return math.MaxFloat64
}

func (e *Engine) boostsFor(s *symbolState, illiqPct float64, illiqOK bool) map[BoostKind]float64 {
	raw := make(map[BoostKind]float64, len(e.cfg.Boosts))
	for _, kind := range e.cfg.Boosts {
		switch kind {
		case BoostVolumeReversal:
			raw[kind] = volumeReversalBoost(s.patvReversal, s.patvLastRatio)
		case BoostLiquidity:
			if illiqOK {
				raw[kind] = liquidityBoost(illiqPct)
			}
		case BoostAttention:
			if heat, ok := s.factors.Value(factor.NameAttention); ok {
				raw[kind] = attentionBoost(heat)
			}
		}
	}
	return raw
}

// selectCandidates takes the top entries above the confidence floor, at
// most MaxSelect, ties already broken by liquidity in the score sort.
func (e *Engine) selectCandidates(horizon domain.Horizon, scores []domain.CompositeScore, states map[string]*symbolState) []domain.Candidate {
	out := make([]domain.Candidate, 0, e.cfg.MaxSelect)
	for _, cs := range scores {
		if len(out) == e.cfg.MaxSelect {
			break
		}
		if cs.Confidence < e.cfg.ConfidenceFloor {
			continue
		}
		q := states[cs.Symbol].input.Quote
		out = append(out, domain.Candidate{
			Symbol:       cs.Symbol,
			Name:         q.Name,
			Horizon:      horizon,
			Rank:         len(out) + 1,
			Score:        cs.Score,
			Confidence:   cs.Confidence,
			Price:        q.Price,
			PctChange:    q.PctChange,
			VolumeRatio:  q.VolumeRatio,
			TurnoverRate: q.TurnoverRate,
			Reason:       topContributor(cs.Breakdown),
		})
	}
	return out
}

// topContributor names the factor with the largest weighted contribution.
func topContributor(breakdown map[string]float64) string {
	best := ""
	bestVal := math.Inf(-1)
	for f, c := range breakdown {
		if c > bestVal || (c == bestVal && f < best) {
			best, bestVal = f, c
		}
	}
	return best
}

// sigmoidConfidence maps a 0-100 composite to a (0,1) probability-shaped
// confidence, centered at 60 with scale 8. It is monotonic in score and is
// not a return forecast.
func sigmoidConfidence(score float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(score-60.0)/8.0))
}
