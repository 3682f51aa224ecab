// Package config loads the process configuration: YAML file, then
// environment overrides for secrets, then struct defaults and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/equityrun/internal/httpapi"
	"github.com/sawpanic/equityrun/internal/notify"
	"github.com/sawpanic/equityrun/internal/pipeline"
	"github.com/sawpanic/equityrun/internal/scheduler"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/screen"
	"github.com/sawpanic/equityrun/internal/signal"
)

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// DatabaseConfig is the Postgres connection. The DSN can also come from
// EQUITYRUN_DB_DSN, which wins over the file.
type DatabaseConfig struct {
	DSN     string        `yaml:"dsn" validate:"required"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

// RedisConfig is the optional quote mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password" json:"-"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl" default:"5m"`
}

// ProviderConfig tunes the failover chain shared by every fetch kind.
type ProviderConfig struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"8s"`
	RatePerSec     float64       `yaml:"rate_per_sec" default:"5"`
	Burst          int           `yaml:"burst" default:"10"`
	BreakerCooloff time.Duration `yaml:"breaker_cooloff" default:"30s"`
}

// IngestConfig drives the realtime poll loop.
type IngestConfig struct {
	Interval  time.Duration `yaml:"interval" default:"5s"`
	BatchSize int           `yaml:"batch_size" default:"80" validate:"gt=0"`
	// RingSize bounds the per-symbol tick history kept in memory.
	RingSize int `yaml:"ring_size" default:"240" validate:"gt=0"`
}

// ScoringConfig combines engine settings with optional per-horizon weight
// overrides. Overridden horizons must still sum to 1.0.
type ScoringConfig struct {
	Engine  scoring.Config         `yaml:"engine"`
	Weights scoring.HorizonWeights `yaml:"weights"`
}

// Config is the root of the configuration tree.
type Config struct {
	Log       LogConfig          `yaml:"log"`
	Database  DatabaseConfig     `yaml:"database"`
	Redis     RedisConfig        `yaml:"redis"`
	Provider  ProviderConfig     `yaml:"provider"`
	Ingest    IngestConfig       `yaml:"ingest"`
	Screen    screen.Config      `yaml:"screen"`
	Pipeline  pipeline.Config    `yaml:"pipeline"`
	Scoring   ScoringConfig      `yaml:"scoring"`
	Signal    signal.Config      `yaml:"signal"`
	Email     notify.EmailConfig `yaml:"email"`
	Scheduler scheduler.Config   `yaml:"scheduler"`
	Monitor   httpapi.Config     `yaml:"monitor"`
}

// Load reads path (optional when EQUITYRUN_DB_DSN covers the one required
// field), layers env overrides, applies defaults and validates. A .env file
// in the working directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Screen:    screen.DefaultConfig(),
		Signal:    signal.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Monitor:   httpapi.DefaultConfig(),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets stay out of the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("EQUITYRUN_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("EQUITYRUN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("EQUITYRUN_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EQUITYRUN_SMTP_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if cfg.Signal.BuyThreshold <= cfg.Signal.SellThreshold {
		return fmt.Errorf("config validation: buy threshold %.1f must exceed sell threshold %.1f",
			cfg.Signal.BuyThreshold, cfg.Signal.SellThreshold)
	}
	if len(cfg.Scoring.Weights) > 0 {
		merged := scoring.DefaultWeights().Merge(cfg.Scoring.Weights)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
	}
	return nil
}

// EffectiveWeights resolves the weight tables the engine should run with.
func (c *Config) EffectiveWeights() scoring.HorizonWeights {
	return scoring.DefaultWeights().Merge(c.Scoring.Weights)
}
