package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/provider"
)

// DeepDive is the on-demand detail view for one symbol. Each section is
// fetched through the same failover chain the batch pass uses and carries
// the attribution of the tier that served it. Sections fail independently:
// a missing fundamentals block does not blank the quote.
type DeepDive struct {
	Symbol       string                               `json:"symbol"`
	Quote        *domain.QuoteSnapshot                `json:"quote,omitempty"`
	Window       *domain.PriceWindow                  `json:"window,omitempty"`
	Fundamentals *provider.Fundamentals               `json:"fundamentals,omitempty"`
	Holders      []provider.Holder                    `json:"holders,omitempty"`
	News         []provider.NewsItem                  `json:"news,omitempty"`
	Sources      map[provider.FetchKind]provider.Attribution `json:"sources"`
	Errors       map[provider.FetchKind]string        `json:"errors,omitempty"`
	FetchedAt    time.Time                            `json:"fetched_at"`
}

// Diver runs deep dives against a failover fetcher.
type Diver struct {
	fetcher Fetcher
	days    int
	log     zerolog.Logger
}

func NewDiver(fetcher Fetcher, historyDays int, log zerolog.Logger) *Diver {
	if historyDays <= 0 {
		historyDays = 320
	}
	return &Diver{
		fetcher: fetcher,
		days:    historyDays,
		log:     log.With().Str("component", "deepdive").Logger(),
	}
}

// Dive fetches every section for symbol. It returns an error only when the
// symbol itself is malformed or the context dies; per-section failures land
// in the Errors map.
func (d *Diver) Dive(ctx context.Context, symbol string) (*DeepDive, error) {
	sym, err := provider.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	dd := &DeepDive{
		Symbol:    sym,
		Sources:   make(map[provider.FetchKind]provider.Attribution),
		Errors:    make(map[provider.FetchKind]string),
		FetchedAt: time.Now(),
	}

	for _, kind := range []provider.FetchKind{
		provider.KindRealtimeQuote,
		provider.KindHistoryWindow,
		provider.KindFundamentals,
		provider.KindHolders,
		provider.KindNews,
	} {
		if err := ctx.Err(); err != nil {
			return dd, err
		}
		req := provider.Request{Kind: kind, Symbol: sym, Days: d.days}
		if kind == provider.KindRealtimeQuote {
			req.Symbols = []string{sym}
		}
		payload, err := d.fetcher.Fetch(ctx, req)
		if err != nil {
			d.log.Debug().Err(err).Str("symbol", sym).Str("kind", string(kind)).Msg("deep dive section unavailable")
			dd.Errors[kind] = err.Error()
			continue
		}
		dd.Sources[kind] = payload.Attribution
		d.apply(dd, kind, payload)
	}
	if len(dd.Errors) == 0 {
		dd.Errors = nil
	}
	return dd, nil
}

func (d *Diver) apply(dd *DeepDive, kind provider.FetchKind, payload *provider.Payload) {
	switch kind {
	case provider.KindRealtimeQuote:
		if len(payload.Quotes) > 0 {
			q := payload.Quotes[0]
			dd.Quote = &q
		}
	case provider.KindHistoryWindow:
		dd.Window = payload.Window
	case provider.KindFundamentals:
		dd.Fundamentals = payload.Fundamentals
	case provider.KindHolders:
		dd.Holders = payload.Holders
	case provider.KindNews:
		dd.News = payload.News
	}
}
