package domain

import "time"

// SignalType distinguishes buy and sell signals.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// SignalState is the per-day state of the (symbol, type) signal machine.
type SignalState string

const (
	SignalIdle      SignalState = "idle"
	SignalTriggered SignalState = "triggered"
)

// SignalRecord is an append-only trading signal, uniquely keyed by
// (symbol, trading day, type) so that at most one record per type can be
// emitted per symbol per day regardless of how often the pass is re-run.
type SignalRecord struct {
	Symbol      string      `json:"symbol" db:"symbol"`
	Type        SignalType  `json:"type" db:"signal_type"`
	TradingDay  string      `json:"trading_day" db:"trading_day"`
	TriggeredAt time.Time   `json:"triggered_at" db:"triggered_at"`
	Score       float64     `json:"score" db:"score"`
	Price       float64     `json:"price" db:"price"`
	PrevState   SignalState `json:"prev_state" db:"prev_state"`
	Reason      string      `json:"reason,omitempty" db:"reason"`
}
