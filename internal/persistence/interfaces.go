// Package persistence defines the storage contracts the pipeline writes
// through. Implementations live in subpackages (postgres); the pipeline and
// signal generator depend only on these interfaces.
package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Pass records one batch scoring run for audit and idempotence diagnostics.
type Pass struct {
	ID         string    `json:"id" db:"id"`
	TradingDay string    `json:"trading_day" db:"trading_day"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	Universe   int       `json:"universe" db:"universe"`
	Candidates int       `json:"candidates" db:"candidates"`
	Signals    int       `json:"signals" db:"signals"`
	Err        string    `json:"error,omitempty" db:"error"`
}

// QuoteRepo persists the latest snapshots (upsert by symbol).
type QuoteRepo interface {
	UpsertSnapshots(ctx context.Context, quotes []domain.QuoteSnapshot) error
}

// KlineRepo stores daily bars keyed by (trade day, symbol) and serves the
// lookback windows factors compute over.
type KlineRepo interface {
	UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) error
	LoadWindow(ctx context.Context, symbol string, limit int) (domain.PriceWindow, error)
}

// ScoreRepo stores per-pass composites and selected candidates. Both are
// replaced wholesale per (pass, horizon): candidates are ephemeral.
type ScoreRepo interface {
	InsertScores(ctx context.Context, passID string, scores []domain.CompositeScore) error
	InsertCandidates(ctx context.Context, passID string, candidates []domain.Candidate) error
}

// SignalRepo is the append-only signal log. InsertSignal must be a no-op
// success when the (symbol, trading day, type) key already exists.
type SignalRepo interface {
	SignalExists(ctx context.Context, symbol, tradingDay string, typ domain.SignalType) (bool, error)
	InsertSignal(ctx context.Context, rec domain.SignalRecord) error
	ListSignals(ctx context.Context, tradingDay string) ([]domain.SignalRecord, error)
}

// WatchlistRepo reads user-managed watchlist membership. The engine never
// mutates the watchlist.
type WatchlistRepo interface {
	WatchedSymbols(ctx context.Context) ([]string, error)
}

// PassRepo books the start and end of batch passes.
type PassRepo interface {
	RecordPass(ctx context.Context, p Pass) error
}

// Store aggregates every repo a full pipeline needs.
type Store struct {
	Quotes    QuoteRepo
	Klines    KlineRepo
	Scores    ScoreRepo
	Signals   SignalRepo
	Watchlist WatchlistRepo
	Passes    PassRepo
}
