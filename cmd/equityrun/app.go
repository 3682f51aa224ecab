package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/config"
	"github.com/sawpanic/equityrun/internal/httpapi"
	"github.com/sawpanic/equityrun/internal/ingest"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/notify"
	"github.com/sawpanic/equityrun/internal/persistence"
	"github.com/sawpanic/equityrun/internal/persistence/postgres"
	"github.com/sawpanic/equityrun/internal/pipeline"
	"github.com/sawpanic/equityrun/internal/provider"
	"github.com/sawpanic/equityrun/internal/quotecache"
	"github.com/sawpanic/equityrun/internal/scheduler"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/signal"
)

// app holds the wired process. Everything hangs off the config; commands
// pick the pieces they run.
type app struct {
	cfg       *config.Config
	store     *persistence.Store
	cache     *quotecache.Cache
	client    *provider.TieredClient
	eastmoney *provider.EastmoneyProvider
	ingester  *ingest.Ingester
	pass      *pipeline.Pass
	diver     *pipeline.Diver
	monitor   *httpapi.Server
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	loc       *time.Location

	closers []func()
}

func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	setupLogger(cfg.Log.Level, cfg.Log.Pretty)
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	db, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() { db.Close() })
	a.store = postgres.NewStore(db, cfg.Database.Timeout)

	// Providers resolve timestamps in exchange-local time; the scheduler's
	// location is authoritative for what counts as a trading day.
	sched, err := scheduler.New(cfg.Scheduler, a.runScheduledPass, log.Logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = sched
	a.loc = sched.Location()

	a.cache = quotecache.New(cfg.Ingest.RingSize, 2*cfg.Ingest.Interval)

	var mirror ingest.Mirror
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { rdb.Close() })
		rm := quotecache.NewRedisMirror(rdb, cfg.Redis.TTL, log.Logger)
		mirror = rm

		// Warm start: any still-live mirrored quotes beat an empty cache.
		warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if symbols, err := a.watchedSymbols(warmCtx); err == nil {
			if n := rm.Warm(warmCtx, a.cache, symbols); n > 0 {
				log.Info().Int("quotes", n).Msg("cache warmed from redis mirror")
			}
		}
		cancel()
	}

	httpClient := &http.Client{Timeout: cfg.Provider.AttemptTimeout}
	a.eastmoney = provider.NewEastmoneyProvider(httpClient, a.loc)
	a.client = provider.NewTieredClient(provider.TieredClientConfig{
		AttemptTimeout: cfg.Provider.AttemptTimeout,
		RatePerSec:     cfg.Provider.RatePerSec,
		Burst:          cfg.Provider.Burst,
		BreakerCooloff: cfg.Provider.BreakerCooloff,
	}, a.metrics, log.Logger)
	// Registration order is failover order.
	a.client.Register(provider.NewTencentProvider(httpClient, a.loc))
	a.client.Register(provider.NewSinaProvider(httpClient, a.loc))
	a.client.Register(a.eastmoney)

	a.ingester = ingest.New(a.client, a.cache, mirror, a.store.Quotes, a.metrics, a.watchedSymbols, ingest.Config{
		Interval:  cfg.Ingest.Interval,
		BatchSize: cfg.Ingest.BatchSize,
	}, log.Logger)

	engine, err := scoring.NewEngine(cfg.EffectiveWeights(), cfg.Scoring.Engine, log.Logger)
	if err != nil {
		a.close()
		return nil, err
	}
	gen, err := signal.New(a.store.Signals, cfg.Signal, log.Logger)
	if err != nil {
		a.close()
		return nil, err
	}

	passCfg := cfg.Pipeline
	passCfg.Screen = cfg.Screen
	a.pass = pipeline.New(a.client, a.cache, a.store, engine, gen,
		notify.ForConfig(cfg.Email, log.Logger), a.sectorSource, a.metrics,
		passCfg, a.loc, log.Logger)
	a.diver = pipeline.NewDiver(a.client, passCfg.HistoryDays, log.Logger)
	a.monitor = httpapi.NewServer(cfg.Monitor, a.cache, a.store.Signals, a.diver, a.metrics, log.Logger)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// watchedSymbols is the polling universe, re-read every round.
func (a *app) watchedSymbols(ctx context.Context) ([]string, error) {
	return a.store.Watchlist.WatchedSymbols(ctx)
}

// sectorSource resolves industries through Eastmoney directly; the batch
// endpoint has no sector field on the other tiers. Individual misses just
// leave the symbol out of the attention phase.
func (a *app) sectorSource(ctx context.Context, symbols []string) (map[string]string, error) {
	sectors := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return sectors, err
		}
		industry, err := a.eastmoney.Industry(ctx, sym)
		if err != nil || industry == "" {
			continue
		}
		sectors[sym] = industry
	}
	return sectors, nil
}

func (a *app) runScheduledPass(ctx context.Context) error {
	// Refresh quotes once right before the pass: after the close the
	// realtime loop may be idle, and scoring wants the day's final state.
	if _, err := a.ingester.Poll(ctx); err != nil {
		log.Warn().Err(err).Msg("pre-pass quote refresh failed")
	}
	_, err := a.pass.Run(ctx)
	return err
}
