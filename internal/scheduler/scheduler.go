// Package scheduler triggers the daily batch pass after the market close.
// The pass itself is idempotent per trading day, so a missed or doubled
// trigger is harmless.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PassFunc runs one batch pass.
type PassFunc func(ctx context.Context) error

// Config controls the trigger.
type Config struct {
	// Spec is a standard 5-field cron expression, evaluated in Location.
	Spec string `yaml:"spec"`
	// Location names the tz the spec runs in. Defaults to Asia/Shanghai.
	Location string `yaml:"location"`
	// RunTimeout bounds one triggered pass.
	RunTimeout time.Duration `yaml:"run_timeout"`
	// SkipWeekends suppresses Saturday/Sunday triggers so an "every day at
	// 15:10" spec stays quiet on non-trading days.
	SkipWeekends bool `yaml:"skip_weekends"`
}

func DefaultConfig() Config {
	return Config{
		Spec:         "10 15 * * *",
		Location:     "Asia/Shanghai",
		RunTimeout:   30 * time.Minute,
		SkipWeekends: true,
	}
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	cfg  Config
	loc  *time.Location
	pass PassFunc
	log  zerolog.Logger
}

func New(cfg Config, pass PassFunc, log zerolog.Logger) (*Scheduler, error) {
	def := DefaultConfig()
	if cfg.Spec == "" {
		cfg.Spec = def.Spec
	}
	if cfg.Location == "" {
		cfg.Location = def.Location
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("scheduler location %q: %w", cfg.Location, err)
	}

	s := &Scheduler{
		cfg:  cfg,
		loc:  loc,
		pass: pass,
		log:  log.With().Str("component", "scheduler").Logger(),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		// A pass can outlast its slot on a slow day; never stack a second
		// one on top of it.
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, s.trigger); err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Location returns the scheduler's resolved timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Start begins triggering. Stop blocks until an in-flight pass returns.
func (s *Scheduler) Start() {
	s.log.Info().Str("spec", s.cfg.Spec).Str("location", s.cfg.Location).Msg("scheduler started")
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) trigger() {
	now := time.Now().In(s.loc)
	if s.cfg.SkipWeekends && isWeekend(now) {
		s.log.Debug().Str("day", now.Weekday().String()).Msg("weekend, pass skipped")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	s.log.Info().Msg("scheduled pass starting")
	if err := s.pass(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled pass failed")
		return
	}
	s.log.Info().Msg("scheduled pass finished")
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
