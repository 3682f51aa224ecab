// Package ingest runs the realtime polling loop: fetch quote batches for the
// tracked universe through the tiered provider client, apply them to the
// quote cache under last-write-wins, and mirror accepted snapshots to Redis.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/provider"
	"github.com/sawpanic/equityrun/internal/quotecache"
)

// Fetcher is the slice of the tiered client the ingester needs.
type Fetcher interface {
	Fetch(ctx context.Context, req provider.Request) (*provider.Payload, error)
}

// Mirror receives accepted snapshots; failures are the mirror's problem.
type Mirror interface {
	StoreAll(ctx context.Context, quotes []domain.QuoteSnapshot)
}

// Sink durably persists accepted snapshots. Persistence lag is logged, not
// fatal: the in-memory cache stays authoritative for the running process.
type Sink interface {
	UpsertSnapshots(ctx context.Context, quotes []domain.QuoteSnapshot) error
}

// CacheObserver receives the outcome of every cache write, accepted or
// discarded by last-write-wins.
type CacheObserver interface {
	ObserveCachePut(accepted bool)
}

// SymbolSource supplies the universe to poll, re-evaluated every round so a
// watchlist edit takes effect without a restart.
type SymbolSource func(ctx context.Context) ([]string, error)

// Config bounds one polling round.
type Config struct {
	Interval  time.Duration // tick interval between rounds
	BatchSize int           // symbols per upstream request
}

type Ingester struct {
	fetcher Fetcher
	cache   *quotecache.Cache
	mirror  Mirror        // optional
	sink    Sink          // optional
	obs     CacheObserver // optional
	source  SymbolSource
	cfg     Config
	log     zerolog.Logger
}

func New(fetcher Fetcher, cache *quotecache.Cache, mirror Mirror, sink Sink, obs CacheObserver, source SymbolSource, cfg Config, log zerolog.Logger) *Ingester {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 80
	}
	return &Ingester{
		fetcher: fetcher,
		cache:   cache,
		mirror:  mirror,
		sink:    sink,
		obs:     obs,
		source:  source,
		cfg:     cfg,
		log:     log.With().Str("component", "ingester").Logger(),
	}
}

// Run polls until the context is cancelled. Round errors are logged and the
// loop keeps going; a dead upstream must not kill ingestion for good.
func (i *Ingester) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.cfg.Interval)
	defer ticker.Stop()

	for {
		if n, err := i.Poll(ctx); err != nil {
			i.log.Warn().Err(err).Msg("poll round failed")
		} else {
			i.log.Debug().Int("accepted", n).Msg("poll round complete")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one round over the current universe and returns how many
// snapshots the cache accepted. A batch whose every tier failed is skipped;
// the round only errors when the symbol source itself fails.
func (i *Ingester) Poll(ctx context.Context) (int, error) {
	symbols, err := i.source(ctx)
	if err != nil {
		return 0, err
	}
	if len(symbols) == 0 {
		return 0, nil
	}

	accepted := 0
	for start := 0; start < len(symbols); start += i.cfg.BatchSize {
		end := start + i.cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		payload, err := i.fetcher.Fetch(ctx, provider.Request{Kind: provider.KindRealtimeQuote, Symbols: batch})
		if err != nil {
			i.log.Warn().Err(err).Int("batch_size", len(batch)).Msg("quote batch unavailable")
			if ctx.Err() != nil {
				return accepted, ctx.Err()
			}
			continue
		}

		stored := make([]domain.QuoteSnapshot, 0, len(payload.Quotes))
		for _, q := range payload.Quotes {
			ok := i.cache.Put(q)
			if i.obs != nil {
				i.obs.ObserveCachePut(ok)
			}
			if ok {
				stored = append(stored, q)
				accepted++
			}
		}
		if len(stored) > 0 {
			if i.mirror != nil {
				i.mirror.StoreAll(ctx, stored)
			}
			if i.sink != nil {
				if err := i.sink.UpsertSnapshots(ctx, stored); err != nil {
					i.log.Warn().Err(err).Int("quotes", len(stored)).Msg("snapshot persist failed")
				}
			}
		}
	}
	return accepted, nil
}
