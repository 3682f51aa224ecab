// Package metrics exposes Prometheus instrumentation for the ingest loop,
// the provider failover chain, and the batch pass.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/equityrun/internal/ingest"
	"github.com/sawpanic/equityrun/internal/provider"
)

// Metrics holds every collector. One instance per process, registered on a
// single registry so the monitor endpoint can serve it.
type Metrics struct {
	Registry *prometheus.Registry

	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	failovers        *prometheus.CounterVec
	exhausted        *prometheus.CounterVec

	CacheAccepted  prometheus.Counter
	CacheDiscarded prometheus.Counter

	PassDuration prometheus.Histogram
	PassUniverse prometheus.Gauge
	Candidates   *prometheus.GaugeVec
	SignalsTotal *prometheus.CounterVec
	PassFailures prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_provider_attempts_total",
			Help: "Upstream fetch attempts by provider, kind and outcome.",
		}, []string{"provider", "kind", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "equityrun_provider_latency_seconds",
			Help:    "Latency of upstream fetch attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "kind"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_provider_failovers_total",
			Help: "Times the chain advanced past a failed tier.",
		}, []string{"kind"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_provider_exhausted_total",
			Help: "Fetches where every tier failed.",
		}, []string{"kind"}),
		CacheAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equityrun_quote_cache_accepted_total",
			Help: "Quote writes accepted by last-write-wins.",
		}),
		CacheDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equityrun_quote_cache_discarded_total",
			Help: "Quote writes discarded as stale by last-write-wins.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "equityrun_pass_duration_seconds",
			Help:    "Wall time of one batch scoring pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PassUniverse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "equityrun_pass_universe",
			Help: "Symbols entering the last pass before screening.",
		}),
		Candidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "equityrun_candidates_selected",
			Help: "Candidates selected per horizon in the last pass.",
		}, []string{"horizon"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_signals_emitted_total",
			Help: "Signals emitted by type.",
		}, []string{"type"}),
		PassFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equityrun_pass_failures_total",
			Help: "Batch passes that aborted with a systemic error.",
		}),
	}
	reg.MustRegister(
		m.providerAttempts, m.providerLatency, m.failovers, m.exhausted,
		m.CacheAccepted, m.CacheDiscarded,
		m.PassDuration, m.PassUniverse, m.Candidates, m.SignalsTotal, m.PassFailures,
	)
	return m
}

// ObserveAttempt implements provider.Observer.
func (m *Metrics) ObserveAttempt(name string, kind provider.FetchKind, latency time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerAttempts.WithLabelValues(name, string(kind), outcome).Inc()
	m.providerLatency.WithLabelValues(name, string(kind)).Observe(latency.Seconds())
}

// ObserveFailover implements provider.Observer.
func (m *Metrics) ObserveFailover(kind provider.FetchKind) {
	m.failovers.WithLabelValues(string(kind)).Inc()
}

// ObserveExhausted implements provider.Observer.
func (m *Metrics) ObserveExhausted(kind provider.FetchKind) {
	m.exhausted.WithLabelValues(string(kind)).Inc()
}

// ObserveCachePut implements ingest.CacheObserver.
func (m *Metrics) ObserveCachePut(accepted bool) {
	if accepted {
		m.CacheAccepted.Inc()
	} else {
		m.CacheDiscarded.Inc()
	}
}

var (
	_ provider.Observer    = (*Metrics)(nil)
	_ ingest.CacheObserver = (*Metrics)(nil)
)
