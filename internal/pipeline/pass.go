// Package pipeline runs the batch scoring pass: screen the cached universe,
// assemble history windows, score across horizons, persist composites and
// candidates, emit signals, notify. One symbol's failure never aborts the
// pass; only a systemic storage failure does.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/notify"
	"github.com/sawpanic/equityrun/internal/persistence"
	"github.com/sawpanic/equityrun/internal/provider"
	"github.com/sawpanic/equityrun/internal/quotecache"
	"github.com/sawpanic/equityrun/internal/screen"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/signal"
)

// Fetcher is the tiered-client slice the pass needs.
type Fetcher interface {
	Fetch(ctx context.Context, req provider.Request) (*provider.Payload, error)
}

// SectorSource resolves sector labels for the attention phase. Optional; a
// nil source or an error just disables that factor for the pass.
type SectorSource func(ctx context.Context, symbols []string) (map[string]string, error)

// Config bounds one pass.
type Config struct {
	HistoryDays int           `yaml:"history_days"` // bars to keep per window
	Screen      screen.Config `yaml:"screen"`
}

// Pass wires the batch pipeline.
type Pass struct {
	fetcher  Fetcher
	cache    *quotecache.Cache
	store    *persistence.Store
	engine   *scoring.Engine
	signals  *signal.Generator
	notifier notify.Notifier
	sectors  SectorSource
	metrics  *metrics.Metrics
	cfg      Config
	loc      *time.Location
	log      zerolog.Logger
}

func New(fetcher Fetcher, cache *quotecache.Cache, store *persistence.Store,
	engine *scoring.Engine, signals *signal.Generator, notifier notify.Notifier,
	sectors SectorSource, m *metrics.Metrics, cfg Config, loc *time.Location, log zerolog.Logger) *Pass {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 320
	}
	if cfg.Screen.MaxCandidates == 0 {
		cfg.Screen = screen.DefaultConfig()
	}
	return &Pass{
		fetcher:  fetcher,
		cache:    cache,
		store:    store,
		engine:   engine,
		signals:  signals,
		notifier: notifier,
		sectors:  sectors,
		metrics:  m,
		cfg:      cfg,
		loc:      loc,
		log:      log.With().Str("component", "pass").Logger(),
	}
}

// Summary reports what one pass did.
type Summary struct {
	PassID     string
	TradingDay string
	Universe   int
	Screened   int
	Scored     int
	Candidates map[domain.Horizon][]domain.Candidate
	Signals    []domain.SignalRecord
}

// Run executes one pass for the current trading day. Safe to invoke more
// than once per day: candidates are keyed by pass, signals by the
// (symbol, day, type) unique key.
func (p *Pass) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	passID := uuid.NewString()
	tradingDay := domain.TradingDay(started, p.loc)
	log := p.log.With().Str("pass_id", passID).Str("trading_day", tradingDay).Logger()

	universe := p.universeQuotes()
	admitted, rejections := screen.Filter(universe, p.cfg.Screen, started)
	log.Info().Int("universe", len(universe)).Int("admitted", len(admitted)).
		Int("rejected", len(rejections)).Msg("screen complete")
	if p.metrics != nil {
		p.metrics.PassUniverse.Set(float64(len(universe)))
	}

	inputs := p.assembleInputs(ctx, admitted, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sectors := p.resolveSectors(ctx, inputs, log)

	result, err := p.engine.Score(ctx, inputs, sectors)
	if err != nil {
		p.recordFailure(passID, tradingDay, started, len(universe), err)
		return nil, fmt.Errorf("scoring pass: %w", err)
	}

	summary := &Summary{
		PassID:     passID,
		TradingDay: tradingDay,
		Universe:   len(universe),
		Screened:   len(admitted),
		Scored:     len(inputs),
		Candidates: result.Selected,
	}

	if err := p.persistScores(ctx, passID, result); err != nil {
		p.recordFailure(passID, tradingDay, started, len(universe), err)
		return nil, err
	}

	emitted, err := p.emitSignals(ctx, result, tradingDay, log)
	if err != nil {
		p.recordFailure(passID, tradingDay, started, len(universe), err)
		return nil, err
	}
	summary.Signals = emitted

	// Notification failure must not roll anything back.
	if err := p.notifier.NotifySignals(ctx, tradingDay, emitted); err != nil {
		log.Warn().Err(err).Msg("signal notification failed")
	}

	p.finish(ctx, passID, tradingDay, started, summary, log)
	return summary, nil
}

// universeQuotes snapshots the cached universe. Staleness is tolerated
// here; the screen config decides how old is too old for admission.
func (p *Pass) universeQuotes() []domain.QuoteSnapshot {
	symbols := p.cache.Symbols()
	out := make([]domain.QuoteSnapshot, 0, len(symbols))
	for _, sym := range symbols {
		if q, ok := p.cache.Get(sym); ok {
			out = append(out, q)
		}
	}
	return out
}

// assembleInputs pairs each admitted quote with its history window: stored
// klines first, provider fetch (then persist) when storage is short. A
// symbol with no obtainable window is dropped, not fatal.
func (p *Pass) assembleInputs(ctx context.Context, admitted []domain.QuoteSnapshot, log zerolog.Logger) []scoring.Input {
	inputs := make([]scoring.Input, 0, len(admitted))
	for _, q := range admitted {
		if ctx.Err() != nil {
			return inputs
		}
		w, err := p.windowFor(ctx, q.Symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", q.Symbol).Msg("no history window, symbol skipped")
			continue
		}
		inputs = append(inputs, scoring.Input{Quote: q, Window: w})
	}
	return inputs
}

func (p *Pass) windowFor(ctx context.Context, symbol string) (domain.PriceWindow, error) {
	minBars := scoring.MinBars[domain.HorizonShort]
	if w, err := p.store.Klines.LoadWindow(ctx, symbol, p.cfg.HistoryDays); err == nil && w.Len() >= minBars {
		return w, nil
	}

	payload, err := p.fetcher.Fetch(ctx, provider.Request{
		Kind: provider.KindHistoryWindow, Symbol: symbol, Days: p.cfg.HistoryDays,
	})
	if err != nil {
		return domain.PriceWindow{}, err
	}
	if payload.Window == nil || payload.Window.Len() < minBars {
		return domain.PriceWindow{}, domain.ErrInsufficientWindow
	}
	if err := p.store.Klines.UpsertBars(ctx, symbol, payload.Window.Bars); err != nil {
		// Storage lag is not worth losing the pass over; score from the
		// fetched window.
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("kline persist failed")
	}
	return *payload.Window, nil
}

func (p *Pass) resolveSectors(ctx context.Context, inputs []scoring.Input, log zerolog.Logger) map[string]string {
	if p.sectors == nil {
		return nil
	}
	symbols := make([]string, len(inputs))
	for i, in := range inputs {
		symbols[i] = in.Quote.Symbol
	}
	sectors, err := p.sectors(ctx, symbols)
	if err != nil {
		log.Warn().Err(err).Msg("sector lookup failed, attention phase disabled")
		return nil
	}
	return sectors
}

func (p *Pass) persistScores(ctx context.Context, passID string, result *scoring.PassResult) error {
	for _, h := range domain.Horizons() {
		if err := p.store.Scores.InsertScores(ctx, passID, result.Scores[h]); err != nil {
			return fmt.Errorf("persist scores %s: %w", h, err)
		}
		if err := p.store.Scores.InsertCandidates(ctx, passID, result.Selected[h]); err != nil {
			return fmt.Errorf("persist candidates %s: %w", h, err)
		}
		if p.metrics != nil {
			p.metrics.Candidates.WithLabelValues(string(h)).Set(float64(len(result.Selected[h])))
		}
	}
	return nil
}

func (p *Pass) emitSignals(ctx context.Context, result *scoring.PassResult, tradingDay string, log zerolog.Logger) ([]domain.SignalRecord, error) {
	watched, err := p.store.Watchlist.WatchedSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	watchSet := make(map[string]bool, len(watched))
	for _, s := range watched {
		watchSet[s] = true
	}

	all := make([]domain.CompositeScore, 0)
	for _, h := range domain.Horizons() {
		all = append(all, result.Scores[h]...)
	}

	now := time.Now()
	quotes := func(symbol string) (domain.QuoteSnapshot, error) {
		return p.cache.Latest(symbol, now)
	}
	emitted, err := p.signals.Evaluate(ctx, all, watchSet, quotes, tradingDay, now)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		for _, s := range emitted {
			p.metrics.SignalsTotal.WithLabelValues(string(s.Type)).Inc()
		}
	}
	log.Info().Int("signals", len(emitted)).Msg("signal evaluation complete")
	return emitted, nil
}

func (p *Pass) finish(ctx context.Context, passID, tradingDay string, started time.Time, s *Summary, log zerolog.Logger) {
	candidates := 0
	for _, c := range s.Candidates {
		candidates += len(c)
	}
	rec := persistence.Pass{
		ID: passID, TradingDay: tradingDay,
		StartedAt: started, FinishedAt: time.Now(),
		Universe: s.Universe, Candidates: candidates, Signals: len(s.Signals),
	}
	if err := p.store.Passes.RecordPass(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("pass bookkeeping failed")
	}
	if p.metrics != nil {
		p.metrics.PassDuration.Observe(time.Since(started).Seconds())
	}
	log.Info().Dur("took", time.Since(started)).Int("candidates", candidates).Msg("pass complete")
}

func (p *Pass) recordFailure(passID, tradingDay string, started time.Time, universe int, cause error) {
	if p.metrics != nil {
		p.metrics.PassFailures.Inc()
	}
	rec := persistence.Pass{
		ID: passID, TradingDay: tradingDay,
		StartedAt: started, FinishedAt: time.Now(),
		Universe: universe, Err: cause.Error(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.Passes.RecordPass(ctx, rec); err != nil {
		p.log.Warn().Err(err).Msg("failure bookkeeping failed")
	}
}
