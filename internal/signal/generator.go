// Package signal detects composite-score threshold crossings for
// watchlisted symbols and emits at most one signal per (symbol, trading
// day, type). Idempotence rests on the persisted history, not in-memory
// state, so a restarted pass cannot double-emit.
package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Store is the persistence oracle and sink. Exists consults prior records;
// Insert must treat a (symbol, trading day, type) key collision as a no-op
// success — that collision is the idempotence backstop.
type Store interface {
	SignalExists(ctx context.Context, symbol, tradingDay string, typ domain.SignalType) (bool, error)
	InsertSignal(ctx context.Context, rec domain.SignalRecord) error
}

// QuoteSource resolves the trigger price. It must refuse stale quotes:
// stale data may screen candidates but never triggers a signal.
type QuoteSource func(symbol string) (domain.QuoteSnapshot, error)

// Config sets the crossing thresholds and which horizon's composite drives
// signals.
type Config struct {
	BuyThreshold  float64        `yaml:"buy_threshold"`
	SellThreshold float64        `yaml:"sell_threshold"`
	Horizon       domain.Horizon `yaml:"horizon"`
}

func DefaultConfig() Config {
	return Config{BuyThreshold: 80, SellThreshold: 20, Horizon: domain.HorizonShort}
}

type Generator struct {
	store Store
	cfg   Config
	log   zerolog.Logger
}

func New(store Store, cfg Config, log zerolog.Logger) (*Generator, error) {
	if cfg.BuyThreshold <= cfg.SellThreshold {
		return nil, fmt.Errorf("buy threshold %v must exceed sell threshold %v", cfg.BuyThreshold, cfg.SellThreshold)
	}
	if !cfg.Horizon.Valid() {
		return nil, fmt.Errorf("unknown signal horizon %q", cfg.Horizon)
	}
	return &Generator{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "signal_generator").Logger(),
	}, nil
}

// Evaluate walks this pass's composites and emits qualifying signals for
// tradingDay. One symbol's failure (stale quote, store read error) skips
// that symbol only. The returned slice holds the records actually emitted
// by this call; suppressed duplicates are absent.
func (g *Generator) Evaluate(ctx context.Context, scores []domain.CompositeScore, watchlist map[string]bool, quotes QuoteSource, tradingDay string, now time.Time) ([]domain.SignalRecord, error) {
	emitted := make([]domain.SignalRecord, 0)
	seen := make(map[string]bool) // (symbol|type) within this pass

	for _, cs := range scores {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		if cs.Horizon != g.cfg.Horizon || !watchlist[cs.Symbol] {
			continue
		}

		typ, ok := g.crossing(cs.Score)
		if !ok {
			continue
		}
		key := cs.Symbol + "|" + string(typ)
		if seen[key] {
			continue
		}
		seen[key] = true

		exists, err := g.store.SignalExists(ctx, cs.Symbol, tradingDay, typ)
		if err != nil {
			g.log.Error().Err(err).Str("symbol", cs.Symbol).Msg("signal history lookup failed")
			continue
		}
		if exists {
			g.log.Debug().Str("symbol", cs.Symbol).Str("type", string(typ)).
				Str("trading_day", tradingDay).Msg("signal already emitted today")
			continue
		}

		q, err := quotes(cs.Symbol)
		if err != nil {
			g.log.Warn().Err(err).Str("symbol", cs.Symbol).Msg("no fresh quote, signal suppressed")
			continue
		}

		rec := domain.SignalRecord{
			Symbol:      cs.Symbol,
			Type:        typ,
			TradingDay:  tradingDay,
			TriggeredAt: now,
			Score:       cs.Score,
			Price:       q.Price,
			PrevState:   domain.SignalIdle,
			Reason:      topFactor(cs.Breakdown),
		}
		if err := g.store.InsertSignal(ctx, rec); err != nil {
			g.log.Error().Err(err).Str("symbol", cs.Symbol).Msg("signal insert failed")
			continue
		}
		g.log.Info().Str("symbol", cs.Symbol).Str("type", string(typ)).
			Float64("score", cs.Score).Str("trading_day", tradingDay).Msg("signal emitted")
		emitted = append(emitted, rec)
	}
	return emitted, nil
}

func (g *Generator) crossing(score float64) (domain.SignalType, bool) {
	switch {
	case score > g.cfg.BuyThreshold:
		return domain.SignalBuy, true
	case score < g.cfg.SellThreshold:
		return domain.SignalSell, true
	}
	return "", false
}

func topFactor(breakdown map[string]float64) string {
	best := ""
	bestVal := 0.0
	for f, c := range breakdown {
		if best == "" || c > bestVal || (c == bestVal && f < best) {
			best, bestVal = f, c
		}
	}
	return best
}
