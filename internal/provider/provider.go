// Package provider implements the tiered upstream data layer: three
// independent quote/history/fundamentals sources (Tencent, Sina, Eastmoney)
// behind a single failover client. Callers never talk to a concrete upstream;
// they ask the TieredClient for a kind of data and get back a payload tagged
// with which tier actually served it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// FetchKind identifies one class of upstream data. Failover order is
// configured per kind; a provider only participates in chains for the kinds
// it supports.
type FetchKind string

const (
	KindRealtimeQuote FetchKind = "realtime_quote"
	KindHistoryWindow FetchKind = "history_window"
	KindFundamentals  FetchKind = "fundamentals"
	KindHolders       FetchKind = "holders"
	KindNews          FetchKind = "news"
)

// Request describes one fetch. Symbols is used for batch realtime quotes;
// Symbol for per-symbol kinds. Days bounds history depth.
type Request struct {
	Kind    FetchKind
	Symbols []string
	Symbol  string
	Days    int
}

func (r Request) primarySymbol() string {
	if r.Symbol != "" {
		return r.Symbol
	}
	if len(r.Symbols) > 0 {
		return r.Symbols[0]
	}
	return ""
}

// Attribution records which provider served a payload and how long the
// winning attempt took. AsOf is the upstream data timestamp when the
// provider reports one, else the local fetch time.
type Attribution struct {
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
	AsOf     time.Time     `json:"as_of"`
}

// Fundamentals is the deep-dive snapshot of a single symbol.
type Fundamentals struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Industry     string  `json:"industry"`
	PE           float64 `json:"pe"`
	PB           float64 `json:"pb"`
	ROE          float64 `json:"roe"`
	MarketCap    float64 `json:"market_cap"`      // total, CNY
	FloatCap     float64 `json:"float_cap"`       // free float, CNY
	TurnoverRate float64 `json:"turnover_rate"`   // percent
	High52       float64 `json:"high_52w"`
	Low52        float64 `json:"low_52w"`
}

// Holder is one entry of a symbol's major-holder table.
type Holder struct {
	Name       string  `json:"name"`
	Ratio      float64 `json:"ratio"` // percent of shares outstanding
	ChangePct  float64 `json:"change_pct"`
	ReportDate string  `json:"report_date"`
}

// NewsItem is one announcement or headline attached to a symbol.
type NewsItem struct {
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
}

// Payload is the union result of a fetch. Only the field matching the
// request kind is populated.
type Payload struct {
	Kind         FetchKind              `json:"kind"`
	Quotes       []domain.QuoteSnapshot `json:"quotes,omitempty"`
	Window       *domain.PriceWindow    `json:"window,omitempty"`
	Fundamentals *Fundamentals          `json:"fundamentals,omitempty"`
	Holders      []Holder               `json:"holders,omitempty"`
	News         []NewsItem             `json:"news,omitempty"`
	Attribution  Attribution            `json:"attribution"`
}

// Provider is one upstream tier.
type Provider interface {
	Name() string
	Supports(kind FetchKind) bool
	Fetch(ctx context.Context, req Request) (*Payload, error)
}

// ProviderError wraps a single tier's failure with enough context to log
// and aggregate. Malformed or empty responses are provider errors too, so
// the chain advances past them.
type ProviderError struct {
	Provider string
	Kind     FetchKind
	Symbol   string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s %s: %v", e.Provider, e.Kind, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UnavailableError reports that every tier in a chain failed. It keeps the
// per-tier causes so logs can show the whole failover trace.
type UnavailableError struct {
	Kind     FetchKind
	Symbol   string
	Attempts []*ProviderError
}

func (e *UnavailableError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("all providers failed for %s %s [%s]", e.Kind, e.Symbol, strings.Join(parts, "; "))
}

// Unwrap exposes the attempt causes to errors.Is/As.
func (e *UnavailableError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// IsUnavailable reports whether err is an exhausted failover chain.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

var (
	// ErrUnsupportedKind is returned by a provider asked for a kind it
	// does not serve; the tiered client filters these out up front.
	ErrUnsupportedKind = errors.New("fetch kind not supported")

	// ErrEmptyResponse marks a syntactically valid but empty upstream
	// reply, treated the same as a failure for failover purposes.
	ErrEmptyResponse = errors.New("empty response")
)
