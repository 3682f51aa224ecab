// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx. Schema lives in schema.sql.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/persistence"
)

const defaultTimeout = 10 * time.Second

// uniqueViolation is the Postgres error code the signal idempotence
// backstop keys on.
const uniqueViolation = "23505"

// Open connects and pings. DSN is a lib/pq connection string.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewStore wires every repo onto one connection pool.
func NewStore(db *sqlx.DB, timeout time.Duration) *persistence.Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &persistence.Store{
		Quotes:    &quoteRepo{db: db, timeout: timeout},
		Klines:    &klineRepo{db: db, timeout: timeout},
		Scores:    &scoreRepo{db: db, timeout: timeout},
		Signals:   &signalRepo{db: db, timeout: timeout},
		Watchlist: &watchlistRepo{db: db, timeout: timeout},
		Passes:    &passRepo{db: db, timeout: timeout},
	}
}

type quoteRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *quoteRepo) UpsertSnapshots(ctx context.Context, quotes []domain.QuoteSnapshot) error {
	if len(quotes) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quote upsert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO stock_quote (symbol, name, ts, price, open, prev_close, high, low,
			volume, turnover, pct_change, volume_ratio, turnover_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name, ts = EXCLUDED.ts, price = EXCLUDED.price,
			open = EXCLUDED.open, prev_close = EXCLUDED.prev_close,
			high = EXCLUDED.high, low = EXCLUDED.low, volume = EXCLUDED.volume,
			turnover = EXCLUDED.turnover, pct_change = EXCLUDED.pct_change,
			volume_ratio = EXCLUDED.volume_ratio, turnover_rate = EXCLUDED.turnover_rate
		WHERE stock_quote.ts < EXCLUDED.ts`

	for _, q := range quotes {
		if _, err := tx.ExecContext(ctx, query,
			q.Symbol, q.Name, q.Timestamp, q.Price, q.Open, q.PrevClose, q.High, q.Low,
			q.Volume, q.Turnover, q.PctChange, q.VolumeRatio, q.TurnoverRate); err != nil {
			return fmt.Errorf("upsert quote %s: %w", q.Symbol, err)
		}
	}
	return tx.Commit()
}

type klineRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *klineRepo) UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kline upsert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO stock_daily_kline (trade_day, symbol, open, high, low, close, volume, turnover)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trade_day, symbol) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, turnover = EXCLUDED.turnover`

	for _, b := range bars {
		if _, err := tx.ExecContext(ctx, query,
			b.Time, symbol, b.Open, b.High, b.Low, b.Close, b.Volume, b.Turnover); err != nil {
			return fmt.Errorf("upsert kline %s %s: %w", symbol, b.Time.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

func (r *klineRepo) LoadWindow(ctx context.Context, symbol string, limit int) (domain.PriceWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT trade_day, open, high, low, close, volume, turnover
		FROM stock_daily_kline
		WHERE symbol = $1
		ORDER BY trade_day DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, symbol, limit)
	if err != nil {
		return domain.PriceWindow{}, fmt.Errorf("load window %s: %w", symbol, err)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0, limit)
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Turnover); err != nil {
			return domain.PriceWindow{}, fmt.Errorf("scan kline %s: %w", symbol, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return domain.PriceWindow{}, fmt.Errorf("iterate klines %s: %w", symbol, err)
	}
	// Newest-first from the index; the window wants oldest-first.
	return domain.NewPriceWindowSorted(symbol, bars), nil
}

type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *scoreRepo) InsertScores(ctx context.Context, passID string, scores []domain.CompositeScore) error {
	if len(scores) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin score insert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO composite_score (pass_id, symbol, horizon, score, confidence, boost_delta, breakdown, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pass_id, symbol, horizon) DO NOTHING`

	for _, s := range scores {
		breakdown, err := json.Marshal(s.Breakdown)
		if err != nil {
			return fmt.Errorf("marshal breakdown %s: %w", s.Symbol, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			passID, s.Symbol, string(s.Horizon), s.Score, s.Confidence, s.BoostDelta, breakdown, s.ComputedAt); err != nil {
			return fmt.Errorf("insert score %s/%s: %w", s.Symbol, s.Horizon, err)
		}
	}
	return tx.Commit()
}

func (r *scoreRepo) InsertCandidates(ctx context.Context, passID string, candidates []domain.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin candidate insert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO candidate (pass_id, horizon, rank, symbol, name, score, confidence,
			price, pct_change, volume_ratio, turnover_rate, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (pass_id, horizon, rank) DO NOTHING`

	for _, c := range candidates {
		if _, err := tx.ExecContext(ctx, query,
			passID, string(c.Horizon), c.Rank, c.Symbol, c.Name, c.Score, c.Confidence,
			c.Price, c.PctChange, c.VolumeRatio, c.TurnoverRate, c.Reason); err != nil {
			return fmt.Errorf("insert candidate %s/%s: %w", c.Symbol, c.Horizon, err)
		}
	}
	return tx.Commit()
}

type signalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *signalRepo) SignalExists(ctx context.Context, symbol, tradingDay string, typ domain.SignalType) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT 1 FROM trade_signal
		WHERE symbol = $1 AND trading_day = $2 AND signal_type = $3`

	var one int
	err := r.db.QueryRowxContext(ctx, query, symbol, tradingDay, string(typ)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("signal lookup %s: %w", symbol, err)
	}
	return true, nil
}

// InsertSignal appends a record; a key collision means another run already
// emitted it and counts as success.
func (r *signalRepo) InsertSignal(ctx context.Context, rec domain.SignalRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO trade_signal (symbol, trading_day, signal_type, triggered_at, score, price, prev_state, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, trading_day, signal_type) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		rec.Symbol, rec.TradingDay, string(rec.Type), rec.TriggeredAt,
		rec.Score, rec.Price, string(rec.PrevState), rec.Reason)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil
		}
		return fmt.Errorf("insert signal %s/%s: %w", rec.Symbol, rec.Type, err)
	}
	return nil
}

func (r *signalRepo) ListSignals(ctx context.Context, tradingDay string) ([]domain.SignalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT symbol, signal_type, trading_day, triggered_at, score, price, prev_state, reason
		FROM trade_signal
		WHERE trading_day = $1
		ORDER BY triggered_at, symbol`

	var out []domain.SignalRecord
	if err := r.db.SelectContext(ctx, &out, query, tradingDay); err != nil {
		return nil, fmt.Errorf("list signals %s: %w", tradingDay, err)
	}
	return out, nil
}

type watchlistRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *watchlistRepo) WatchedSymbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []string
	if err := r.db.SelectContext(ctx, &out, `SELECT symbol FROM watchlist ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	return out, nil
}

type passRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *passRepo) RecordPass(ctx context.Context, p persistence.Pass) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO scan_pass (id, trading_day, started_at, finished_at, universe, candidates, signals, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at, universe = EXCLUDED.universe,
			candidates = EXCLUDED.candidates, signals = EXCLUDED.signals, error = EXCLUDED.error`

	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.TradingDay, p.StartedAt, p.FinishedAt, p.Universe, p.Candidates, p.Signals, p.Err); err != nil {
		return fmt.Errorf("record pass %s: %w", p.ID, err)
	}
	return nil
}
