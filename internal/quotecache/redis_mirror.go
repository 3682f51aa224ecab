package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
)

// RedisMirror write-throughs accepted quotes to Redis so other processes
// (and restarts) can read the latest state. Mirror failures are logged and
// swallowed: the in-memory cache remains authoritative.
type RedisMirror struct {
	client redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisMirror(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *RedisMirror {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisMirror{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "redis_mirror").Logger(),
	}
}

func quoteKey(symbol string) string { return "quote:" + symbol }

// Store writes the snapshot as JSON under quote:{symbol} with the mirror TTL.
func (m *RedisMirror) Store(ctx context.Context, q domain.QuoteSnapshot) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote %s: %w", q.Symbol, err)
	}
	if err := m.client.Set(ctx, quoteKey(q.Symbol), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror quote %s: %w", q.Symbol, err)
	}
	return nil
}

// StoreAll mirrors a batch, logging and continuing past individual failures.
func (m *RedisMirror) StoreAll(ctx context.Context, quotes []domain.QuoteSnapshot) {
	for _, q := range quotes {
		if err := m.Store(ctx, q); err != nil {
			m.log.Warn().Err(err).Str("symbol", q.Symbol).Msg("quote mirror write failed")
		}
	}
}

// Warm seeds the cache from mirrored snapshots on startup, returning how
// many the cache accepted. Load errors skip the symbol.
func (m *RedisMirror) Warm(ctx context.Context, cache *Cache, symbols []string) int {
	warmed := 0
	for _, sym := range symbols {
		q, ok, err := m.Load(ctx, sym)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", sym).Msg("quote mirror read failed")
			continue
		}
		if ok && cache.Put(q) {
			warmed++
		}
	}
	return warmed
}

// Load reads a mirrored snapshot back, for warm starts and cross-process
// reads. Missing keys return ok=false.
func (m *RedisMirror) Load(ctx context.Context, symbol string) (domain.QuoteSnapshot, bool, error) {
	data, err := m.client.Get(ctx, quoteKey(symbol)).Bytes()
	if err == redis.Nil {
		return domain.QuoteSnapshot{}, false, nil
	}
	if err != nil {
		return domain.QuoteSnapshot{}, false, fmt.Errorf("load quote %s: %w", symbol, err)
	}
	var q domain.QuoteSnapshot
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.QuoteSnapshot{}, false, fmt.Errorf("decode quote %s: %w", symbol, err)
	}
	return q, true, nil
}
