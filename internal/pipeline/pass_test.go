package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/notify"
	"github.com/sawpanic/equityrun/internal/persistence"
	"github.com/sawpanic/equityrun/internal/provider"
	"github.com/sawpanic/equityrun/internal/quotecache"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/signal"
)

// --- in-memory store ---

type memQuotes struct{}

func (memQuotes) UpsertSnapshots(context.Context, []domain.QuoteSnapshot) error { return nil }

type memKlines struct {
	mu   sync.Mutex
	bars map[string][]domain.Bar
}

func (m *memKlines) UpsertBars(_ context.Context, symbol string, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bars == nil {
		m.bars = make(map[string][]domain.Bar)
	}
	m.bars[symbol] = bars
	return nil
}

func (m *memKlines) LoadWindow(_ context.Context, symbol string, limit int) (domain.PriceWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.bars[symbol]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return domain.NewPriceWindowSorted(symbol, bars), nil
}

type memScores struct {
	mu         sync.Mutex
	scores     int
	candidates int
}

func (m *memScores) InsertScores(_ context.Context, _ string, s []domain.CompositeScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores += len(s)
	return nil
}

func (m *memScores) InsertCandidates(_ context.Context, _ string, c []domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates += len(c)
	return nil
}

// memSignals mirrors the unique-key semantics of the trade_signal table:
// inserting an existing (symbol, day, type) key succeeds without writing.
type memSignals struct {
	mu   sync.Mutex
	recs map[string]domain.SignalRecord
}

func sigKey(symbol, day string, typ domain.SignalType) string {
	return symbol + "|" + day + "|" + string(typ)
}

func (m *memSignals) SignalExists(_ context.Context, symbol, day string, typ domain.SignalType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.recs[sigKey(symbol, day, typ)]
	return ok, nil
}

func (m *memSignals) InsertSignal(_ context.Context, rec domain.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = make(map[string]domain.SignalRecord)
	}
	key := sigKey(rec.Symbol, rec.TradingDay, rec.Type)
	if _, ok := m.recs[key]; ok {
		return nil
	}
	m.recs[key] = rec
	return nil
}

func (m *memSignals) ListSignals(_ context.Context, day string) ([]domain.SignalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SignalRecord
	for _, r := range m.recs {
		if r.TradingDay == day {
			out = append(out, r)
		}
	}
	return out, nil
}

type memWatchlist struct{ symbols []string }

func (m *memWatchlist) WatchedSymbols(context.Context) ([]string, error) {
	return m.symbols, nil
}

type memPasses struct {
	mu   sync.Mutex
	recs []persistence.Pass
}

func (m *memPasses) RecordPass(_ context.Context, p persistence.Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, p)
	return nil
}

// --- fetcher and notifier fakes ---

type windowFetcher struct {
	mu      sync.Mutex
	windows map[string]domain.PriceWindow
	fetches int
}

func (f *windowFetcher) Fetch(_ context.Context, req provider.Request) (*provider.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	w, ok := f.windows[req.Symbol]
	if req.Kind != provider.KindHistoryWindow || !ok {
		return nil, &provider.UnavailableError{Kind: req.Kind, Symbol: req.Symbol}
	}
	return &provider.Payload{
		Kind:        req.Kind,
		Window:      &w,
		Attribution: provider.Attribution{Provider: "fake", AsOf: time.Now()},
	}, nil
}

type captureNotifier struct {
	mu      sync.Mutex
	batches [][]domain.SignalRecord
}

func (c *captureNotifier) NotifySignals(_ context.Context, _ string, signals []domain.SignalRecord) error {
	if len(signals) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, signals)
	return nil
}

var _ notify.Notifier = (*captureNotifier)(nil)

// --- fixtures ---

// oversoldRecoveryBars ends a long decline with a three-bar recovery and a
// volume burst, leaving the symbol oversold on RSI, pinned to the lower
// Bollinger band, and with a rising MACD histogram.
func oversoldRecoveryBars(n int) []domain.Bar {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	price := 40.0
	for i := 0; i < n; i++ {
		if i >= n-3 {
			price += 0.1
		} else {
			price -= 0.2
		}
		vol := 1_000_000.0
		if i == n-1 {
			vol = 3_000_000
		}
		bars[i] = domain.Bar{
			Time: start.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price,
			Volume: vol, Turnover: vol * price,
		}
	}
	return bars
}

func flatBars(n int, level float64) []domain.Bar {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Time: start.AddDate(0, 0, i), Open: level, High: level, Low: level, Close: level,
			Volume: 1_000_000, Turnover: 1_000_000 * level,
		}
	}
	return bars
}

type fixture struct {
	pass     *Pass
	store    *persistence.Store
	signals  *memSignals
	passes   *memPasses
	fetcher  *windowFetcher
	notifier *captureNotifier
	cache    *quotecache.Cache
}

func newFixture(t *testing.T, watch []string) *fixture {
	t.Helper()

	signals := &memSignals{}
	passes := &memPasses{}
	store := &persistence.Store{
		Quotes:    memQuotes{},
		Klines:    &memKlines{},
		Scores:    &memScores{},
		Signals:   signals,
		Watchlist: &memWatchlist{symbols: watch},
		Passes:    passes,
	}

	cache := quotecache.New(16, time.Hour)
	now := time.Now()
	put := func(symbol string, price float64) {
		cache.Put(domain.QuoteSnapshot{
			Symbol: symbol, Name: symbol, Timestamp: now,
			Price: price, Turnover: 5e8,
		})
	}
	put("sh600999", 14.6)
	for i := 0; i < 6; i++ {
		put(fmt.Sprintf("sz00000%d", i), 10.0+float64(i))
	}

	fetcher := &windowFetcher{windows: map[string]domain.PriceWindow{}}
	addWindow := func(symbol string, bars []domain.Bar) {
		w, err := domain.NewPriceWindow(symbol, bars)
		require.NoError(t, err)
		fetcher.windows[symbol] = w
	}
	addWindow("sh600999", oversoldRecoveryBars(130))
	for i := 0; i < 6; i++ {
		addWindow(fmt.Sprintf("sz00000%d", i), flatBars(130, 10.0+float64(i)))
	}

	engine, err := scoring.NewEngine(scoring.DefaultWeights(), scoring.Config{}, zerolog.Nop())
	require.NoError(t, err)
	gen, err := signal.New(signals, signal.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	notifier := &captureNotifier{}
	pass := New(fetcher, cache, store, engine, gen, notifier, nil, nil,
		Config{HistoryDays: 200}, time.UTC, zerolog.Nop())

	return &fixture{
		pass: pass, store: store, signals: signals, passes: passes,
		fetcher: fetcher, notifier: notifier, cache: cache,
	}
}

// --- tests ---

func TestPassEmitsBuySignalExactlyOnceAcrossTwoRuns(t *testing.T) {
	f := newFixture(t, []string{"sh600999"})
	ctx := context.Background()

	first, err := f.pass.Run(ctx)
	require.NoError(t, err)
	require.Len(t, first.Signals, 1)
	sig := first.Signals[0]
	assert.Equal(t, "sh600999", sig.Symbol)
	assert.Equal(t, domain.SignalBuy, sig.Type)
	assert.Greater(t, sig.Score, 80.0)
	assert.Equal(t, first.TradingDay, sig.TradingDay)

	second, err := f.pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.TradingDay, second.TradingDay)
	assert.Empty(t, second.Signals, "same-day re-run must not re-emit")

	stored, err := f.signals.ListSignals(ctx, first.TradingDay)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Len(t, f.notifier.batches, 1, "only the first run notifies")
}

func TestPassUnwatchedSymbolNeverSignals(t *testing.T) {
	f := newFixture(t, nil)
	summary, err := f.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Signals)
	// Candidate selection is independent of the watchlist.
	assert.NotEmpty(t, summary.Candidates[domain.HorizonShort])
}

func TestPassSelectsBoundedSortedCandidates(t *testing.T) {
	f := newFixture(t, nil)
	summary, err := f.pass.Run(context.Background())
	require.NoError(t, err)

	short := summary.Candidates[domain.HorizonShort]
	require.NotEmpty(t, short)
	assert.LessOrEqual(t, len(short), 5)
	assert.Equal(t, "sh600999", short[0].Symbol)
	seen := map[string]bool{}
	for i, c := range short {
		assert.Equal(t, i+1, c.Rank)
		assert.False(t, seen[c.Symbol], "duplicate candidate %s", c.Symbol)
		seen[c.Symbol] = true
		if i > 0 {
			assert.GreaterOrEqual(t, short[i-1].Score, c.Score)
		}
	}
}

func TestPassSkipsSymbolsWithoutHistory(t *testing.T) {
	f := newFixture(t, nil)
	delete(f.fetcher.windows, "sz000003")

	summary, err := f.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Screened)
	assert.Equal(t, 6, summary.Scored, "unfetchable symbol is dropped, not fatal")
}

func TestPassReusesStoredWindows(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.pass.Run(context.Background())
	require.NoError(t, err)
	firstFetches := f.fetcher.fetches
	assert.Equal(t, 7, firstFetches)

	_, err = f.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstFetches, f.fetcher.fetches, "second run serves windows from storage")
}

func TestPassRecordsBookkeeping(t *testing.T) {
	f := newFixture(t, []string{"sh600999"})
	summary, err := f.pass.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f.passes.recs, 1)
	rec := f.passes.recs[0]
	assert.Equal(t, summary.PassID, rec.ID)
	assert.Equal(t, summary.TradingDay, rec.TradingDay)
	assert.Equal(t, 7, rec.Universe)
	assert.Equal(t, 1, rec.Signals)
	assert.Empty(t, rec.Err)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
}

func TestDiveSectionsFailIndependently(t *testing.T) {
	f := newFixture(t, nil)
	diver := NewDiver(f.fetcher, 200, zerolog.Nop())

	dd, err := diver.Dive(context.Background(), "600999")
	require.NoError(t, err)
	assert.Equal(t, "sh600999", dd.Symbol)
	require.NotNil(t, dd.Window)
	assert.Equal(t, 130, dd.Window.Len())
	assert.Equal(t, "fake", dd.Sources[provider.KindHistoryWindow].Provider)
	// The fake serves history only; every other section degrades to an error.
	assert.Contains(t, dd.Errors, provider.KindFundamentals)
	assert.Contains(t, dd.Errors, provider.KindNews)
	assert.Nil(t, dd.Fundamentals)
}

func TestDiveRejectsMalformedSymbol(t *testing.T) {
	f := newFixture(t, nil)
	diver := NewDiver(f.fetcher, 200, zerolog.Nop())
	_, err := diver.Dive(context.Background(), "not-a-symbol")
	require.Error(t, err)
}
