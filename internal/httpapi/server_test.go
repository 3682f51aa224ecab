package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/pipeline"
	"github.com/sawpanic/equityrun/internal/provider"
	"github.com/sawpanic/equityrun/internal/quotecache"
)

type stubSignals struct {
	mu   sync.Mutex
	recs []domain.SignalRecord
	err  error
}

func (s *stubSignals) SignalExists(context.Context, string, string, domain.SignalType) (bool, error) {
	return false, nil
}

func (s *stubSignals) InsertSignal(context.Context, domain.SignalRecord) error { return nil }

func (s *stubSignals) ListSignals(_ context.Context, day string) ([]domain.SignalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.SignalRecord
	for _, r := range s.recs {
		if r.TradingDay == day {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, req provider.Request) (*provider.Payload, error) {
	if req.Kind != provider.KindRealtimeQuote {
		return nil, &provider.UnavailableError{Kind: req.Kind, Symbol: req.Symbol}
	}
	return &provider.Payload{
		Kind: req.Kind,
		Quotes: []domain.QuoteSnapshot{
			{Symbol: req.Symbol, Price: 10.5, Timestamp: time.Now()},
		},
		Attribution: provider.Attribution{Provider: "stub", AsOf: time.Now()},
	}, nil
}

func newTestServer(t *testing.T, signals *stubSignals) *Server {
	t.Helper()
	cache := quotecache.New(16, time.Hour)
	cache.Put(domain.QuoteSnapshot{Symbol: "sh600519", Price: 1700, Timestamp: time.Now()})
	diver := pipeline.NewDiver(stubFetcher{}, 100, zerolog.Nop())
	return NewServer(Config{}, cache, signals, diver, metrics.New(), zerolog.Nop())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubSignals{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.CachedSymbols)
	assert.Equal(t, int64(1), body.CacheAccepted)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	srv := newTestServer(t, &stubSignals{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "equityrun_quote_cache_accepted_total")
}

func TestSignalsEndpointFiltersByDay(t *testing.T) {
	signals := &stubSignals{recs: []domain.SignalRecord{
		{Symbol: "sh600519", TradingDay: "2025-08-25", Type: domain.SignalBuy, Score: 86},
		{Symbol: "sz000001", TradingDay: "2025-08-22", Type: domain.SignalSell, Score: 14},
	}}
	srv := newTestServer(t, signals)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals?day=2025-08-25", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TradingDay string                `json:"trading_day"`
		Count      int                   `json:"count"`
		Signals    []domain.SignalRecord `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2025-08-25", body.TradingDay)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "sh600519", body.Signals[0].Symbol)
}

func TestSignalsEndpointRejectsBadDay(t *testing.T) {
	srv := newTestServer(t, &stubSignals{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals?day=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeepDiveEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubSignals{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deepdive/600519", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var dd pipeline.DeepDive
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dd))
	assert.Equal(t, "sh600519", dd.Symbol)
	require.NotNil(t, dd.Quote)
	assert.Equal(t, 10.5, dd.Quote.Price)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deepdive/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, &stubSignals{})
	srv.cfg.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
