package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Observer receives failover telemetry. The metrics package implements it;
// a nil observer disables reporting.
type Observer interface {
	ObserveAttempt(provider string, kind FetchKind, latency time.Duration, err error)
	ObserveFailover(kind FetchKind)
	ObserveExhausted(kind FetchKind)
}

// TieredClientConfig bounds each attempt. Zero values fall back to the
// defaults below.
type TieredClientConfig struct {
	AttemptTimeout time.Duration // per-provider attempt deadline
	RatePerSec     float64       // per-provider request rate
	Burst          int
	BreakerCooloff time.Duration // open-state probe delay
}

const (
	defaultAttemptTimeout = 8 * time.Second
	defaultRatePerSec     = 5
	defaultBurst          = 10
	defaultBreakerCooloff = 30 * time.Second
)

// TieredClient fans a fetch across an ordered provider chain per kind.
// Each provider sits behind its own circuit breaker and rate limiter; a
// failed, timed-out, empty or malformed attempt advances the chain, and no
// provider is tried twice within one call. Success short-circuits with the
// payload attributed to the serving tier.
type TieredClient struct {
	cfg      TieredClientConfig
	chains   map[FetchKind][]Provider
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
	obs      Observer
	log      zerolog.Logger
}

func NewTieredClient(cfg TieredClientConfig, obs Observer, log zerolog.Logger) *TieredClient {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.BreakerCooloff <= 0 {
		cfg.BreakerCooloff = defaultBreakerCooloff
	}
	return &TieredClient{
		cfg:      cfg,
		chains:   make(map[FetchKind][]Provider),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
		obs:      obs,
		log:      log.With().Str("component", "tiered_client").Logger(),
	}
}

// Register appends p to the failover chain of every kind it supports, in
// registration order. Register primaries first.
func (c *TieredClient) Register(p Provider) {
	name := p.Name()
	if _, ok := c.breakers[name]; !ok {
		c.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: c.cfg.BreakerCooloff,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		c.limiters[name] = rate.NewLimiter(rate.Limit(c.cfg.RatePerSec), c.cfg.Burst)
	}
	for _, kind := range []FetchKind{KindRealtimeQuote, KindHistoryWindow, KindFundamentals, KindHolders, KindNews} {
		if p.Supports(kind) {
			c.chains[kind] = append(c.chains[kind], p)
		}
	}
}

// Fetch walks the chain for req.Kind. It returns the first successful
// payload, or *UnavailableError carrying every tier's cause.
func (c *TieredClient) Fetch(ctx context.Context, req Request) (*Payload, error) {
	chain := c.chains[req.Kind]
	symbol := req.primarySymbol()
	if len(chain) == 0 {
		return nil, &UnavailableError{Kind: req.Kind, Symbol: symbol}
	}

	attempts := make([]*ProviderError, 0, len(chain))
	tried := make(map[string]bool, len(chain))
	for i, p := range chain {
		if tried[p.Name()] {
			continue
		}
		tried[p.Name()] = true

		payload, latency, err := c.attempt(ctx, p, req)
		if c.obs != nil {
			c.obs.ObserveAttempt(p.Name(), req.Kind, latency, err)
		}
		if err == nil {
			payload.Attribution = Attribution{Provider: p.Name(), Latency: latency, AsOf: payloadAsOf(payload)}
			if i > 0 {
				c.log.Debug().Str("provider", p.Name()).Str("kind", string(req.Kind)).
					Str("symbol", symbol).Int("tier", i+1).Msg("served by fallback tier")
			}
			return payload, nil
		}

		perr := &ProviderError{Provider: p.Name(), Kind: req.Kind, Symbol: symbol, Err: err}
		attempts = append(attempts, perr)
		c.log.Warn().Err(err).Str("provider", p.Name()).Str("kind", string(req.Kind)).
			Str("symbol", symbol).Msg("provider attempt failed")
		if c.obs != nil && i < len(chain)-1 {
			c.obs.ObserveFailover(req.Kind)
		}
		if ctx.Err() != nil {
			break // caller gone, no point burning the remaining tiers
		}
	}

	if c.obs != nil {
		c.obs.ObserveExhausted(req.Kind)
	}
	return nil, &UnavailableError{Kind: req.Kind, Symbol: symbol, Attempts: attempts}
}

func (c *TieredClient) attempt(ctx context.Context, p Provider, req Request) (*Payload, time.Duration, error) {
	start := time.Now()
	if err := c.limiters[p.Name()].Wait(ctx); err != nil {
		return nil, time.Since(start), err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	res, err := c.breakers[p.Name()].Execute(func() (interface{}, error) {
		return p.Fetch(attemptCtx, req)
	})
	latency := time.Since(start)
	if err != nil {
		return nil, latency, err
	}
	payload, ok := res.(*Payload)
	if !ok || payload == nil {
		return nil, latency, ErrEmptyResponse
	}
	return payload, latency, nil
}

// payloadAsOf picks the data timestamp the payload carries, falling back to
// now for kinds without one.
func payloadAsOf(p *Payload) time.Time {
	switch {
	case len(p.Quotes) > 0:
		return p.Quotes[0].Timestamp
	case p.Window != nil:
		if last, ok := p.Window.Last(); ok {
			return last.Time
		}
	case len(p.News) > 0:
		return p.News[0].PublishedAt
	}
	return time.Now()
}
