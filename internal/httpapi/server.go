// Package httpapi serves the monitoring surface: health, Prometheus
// metrics, the signal log, and on-demand deep dives. It is read-only; every
// mutation in the system goes through the pipeline.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/persistence"
	"github.com/sawpanic/equityrun/internal/pipeline"
	"github.com/sawpanic/equityrun/internal/quotecache"
)

// Config holds the listener settings.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8090",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the monitor endpoint.
type Server struct {
	cfg     Config
	cache   *quotecache.Cache
	signals persistence.SignalRepo
	diver   *pipeline.Diver
	metrics *metrics.Metrics
	router  *mux.Router
	started time.Time
	log     zerolog.Logger
}

func NewServer(cfg Config, cache *quotecache.Cache, signals persistence.SignalRepo,
	diver *pipeline.Diver, m *metrics.Metrics, log zerolog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		cache:   cache,
		signals: signals,
		diver:   diver,
		metrics: m,
		started: time.Now(),
		log:     log.With().Str("component", "httpapi").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	api.HandleFunc("/deepdive/{symbol}", s.handleDeepDive).Methods(http.MethodGet)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("monitor listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("monitor shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("monitor serve: %w", err)
	}
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	CachedSymbols  int       `json:"cached_symbols"`
	CacheAccepted  int64     `json:"cache_accepted"`
	CacheDiscarded int64     `json:"cache_discarded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	accepted, discarded := s.cache.Stats()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Timestamp:      time.Now(),
		UptimeSeconds:  time.Since(s.started).Seconds(),
		CachedSymbols:  len(s.cache.Symbols()),
		CacheAccepted:  accepted,
		CacheDiscarded: discarded,
	})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad day %q, want YYYY-MM-DD", day))
		return
	}
	recs, err := s.signals.ListSignals(r.Context(), day)
	if err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("signal listing failed")
		s.writeError(w, http.StatusInternalServerError, "signal lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"trading_day": day,
		"count":       len(recs),
		"signals":     recs,
	})
}

func (s *Server) handleDeepDive(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	dd, err := s.diver.Dive(r.Context(), symbol)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, dd)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("response write failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
