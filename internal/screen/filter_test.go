package screen

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
)

func quote(symbol, name string, price, turnover, pct float64, ts time.Time) domain.QuoteSnapshot {
	return domain.QuoteSnapshot{
		Symbol: symbol, Name: name, Price: price,
		Turnover: turnover, PctChange: pct, Timestamp: ts,
	}
}

func TestFilterHardChecks(t *testing.T) {
	now := time.Date(2025, 8, 25, 15, 5, 0, 0, time.UTC)
	cfg := Config{
		MinPrice:        2.0,
		MaxPrice:        500,
		MinTurnover:     10_000_000,
		MaxAbsPctChange: 9.8,
		MaxCandidates:   100,
		MaxQuoteAge:     time.Hour,
	}

	quotes := []domain.QuoteSnapshot{
		quote("sz000001", "平安银行", 10.66, 1.8e9, 2.5, now),              // passes
		quote("sz000002", "", 0, 0, 0, now),                             // missing quote
		quote("sz000003", "某某股份", 1.20, 5e8, 1.0, now),                  // penny
		quote("sh600001", "某某科技", 600, 5e8, 1.0, now),                   // above ceiling
		quote("sh600002", "某某材料", 12, 1e6, 1.0, now),                    // thin turnover
		quote("sz300001", "某某电子", 30, 8e8, 10.0, now),                   // pinned at limit
		quote("sz000004", "ST某某", 8.0, 5e8, 1.0, now),                   // risk flagged
		quote("sh600003", "某某退", 3.0, 5e8, 1.0, now),                    // delisting track
		quote("sh600004", "某某能源", 25, 9e8, -2.0, now.Add(-2*time.Hour)), // too old
	}

	admitted, rejections := Filter(quotes, cfg, now)
	require.Len(t, admitted, 1)
	assert.Equal(t, "sz000001", admitted[0].Symbol)

	reasons := make(map[string]string, len(rejections))
	for _, r := range rejections {
		reasons[r.Symbol] = r.Reason
	}
	assert.Equal(t, "missing quote", reasons["sz000002"])
	assert.Equal(t, "below price floor", reasons["sz000003"])
	assert.Equal(t, "above price ceiling", reasons["sh600001"])
	assert.Equal(t, "below turnover floor", reasons["sh600002"])
	assert.Equal(t, "pinned at price limit", reasons["sz300001"])
	assert.Equal(t, "risk-flagged name", reasons["sz000004"])
	assert.Equal(t, "risk-flagged name", reasons["sh600003"])
	assert.Equal(t, "quote too old", reasons["sh600004"])
}

func TestFilterCandidateCapKeepsHighestTurnover(t *testing.T) {
	now := time.Now()
	cfg := Config{MinPrice: 1, MinTurnover: 1, MaxCandidates: 3}

	quotes := make([]domain.QuoteSnapshot, 0, 10)
	for i := 0; i < 10; i++ {
		quotes = append(quotes, quote(
			fmt.Sprintf("sh60000%d", i), "某某股份", 10,
			float64((i+1))*1e8, 1.0, now,
		))
	}

	admitted, rejections := Filter(quotes, cfg, now)
	require.Len(t, admitted, 3)
	assert.Equal(t, "sh600009", admitted[0].Symbol) // highest turnover first
	assert.Len(t, rejections, 7)
}

func TestFilterStaleToleratedByDefault(t *testing.T) {
	now := time.Now()
	cfg := Config{MinPrice: 1, MinTurnover: 1, MaxCandidates: 10} // MaxQuoteAge zero

	old := quote("sh600519", "贵州茅台", 1700, 4e9, 0.5, now.Add(-24*time.Hour))
	admitted, _ := Filter([]domain.QuoteSnapshot{old}, cfg, now)
	assert.Len(t, admitted, 1)
}

func TestFilterNeverAddsOrReorders(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()
	quotes := []domain.QuoteSnapshot{
		quote("sh600519", "贵州茅台", 1700, 4e9, 0.5, now),
		quote("sz000001", "平安银行", 10.66, 1.8e9, 2.5, now),
	}
	admitted, _ := Filter(quotes, cfg, now)
	require.Len(t, admitted, 2)
	// Under the cap, input order is preserved: the gate adds no ranking.
	assert.Equal(t, "sh600519", admitted[0].Symbol)
	assert.Equal(t, "sz000001", admitted[1].Symbol)
}
