// Package config carries the tunables every store component needs:
// pool sizing, breaker thresholds, retry/backoff, and default
// fetch/write policies. Grounded on internal/config/local_config.go's
// plain-struct-plus-yaml.v3 shape, generalized from beads' CLI config
// file to the store's own tuning document.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratadb/core/breaker"
	"github.com/stratadb/core/pool"
)

// RetryConfig tunes the backoff schedule the façade uses to retry
// pending changes, spec §5's per-retry backoff.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier" mapstructure:"multiplier"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" mapstructure:"max_elapsed_time"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

func defaultRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
		MaxAttempts:     10,
	}
}

// StoreConfig is the plain, YAML-serializable tuning document for a
// Store. Unlike viper's global registry, a StoreConfig instance never
// touches process-wide state — two stores in the same process can load
// independent configs.
type StoreConfig struct {
	Pool    pool.Config    `yaml:"pool" mapstructure:"pool"`
	Breaker breaker.Config `yaml:"breaker" mapstructure:"breaker"`
	Retry   RetryConfig    `yaml:"retry" mapstructure:"retry"`

	DefaultFetchPolicy int           `yaml:"default_fetch_policy" mapstructure:"default_fetch_policy"`
	DefaultWritePolicy int           `yaml:"default_write_policy" mapstructure:"default_write_policy"`
	StaleAfter         time.Duration `yaml:"stale_after" mapstructure:"stale_after"`

	ConflictSoftTimeout     time.Duration `yaml:"conflict_soft_timeout" mapstructure:"conflict_soft_timeout"`
	ConflictDefaultStrategy int           `yaml:"conflict_default_strategy" mapstructure:"conflict_default_strategy"`

	MaxPagesInMemory int `yaml:"max_pages_in_memory" mapstructure:"max_pages_in_memory"`
	PageSize         int `yaml:"page_size" mapstructure:"page_size"`
}

// Default returns a StoreConfig with the thresholds spec §5 names as
// defaults (30s resolver soft timeout, etc.).
func Default() StoreConfig {
	return StoreConfig{
		Pool: pool.Config{
			MinConnections:  1,
			MaxConnections:  10,
			AcquireTimeout:  5 * time.Second,
			IdleTimeout:     5 * time.Minute,
			CleanupInterval: 30 * time.Second,
		},
		Breaker: breaker.Config{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenDuration:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		Retry:                   defaultRetry(),
		StaleAfter:              time.Minute,
		ConflictSoftTimeout:     30 * time.Second,
		MaxPagesInMemory:        10,
		PageSize:                50,
	}
}

// Option mutates a StoreConfig during construction.
type Option func(*StoreConfig)

// WithPool overrides the pool tunables.
func WithPool(cfg pool.Config) Option {
	return func(c *StoreConfig) { c.Pool = cfg }
}

// WithBreaker overrides the circuit-breaker tunables.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *StoreConfig) { c.Breaker = cfg }
}

// WithRetry overrides the retry/backoff schedule.
func WithRetry(cfg RetryConfig) Option {
	return func(c *StoreConfig) { c.Retry = cfg }
}

// WithStaleAfter overrides the stale_while_revalidate threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(c *StoreConfig) { c.StaleAfter = d }
}

// New builds a StoreConfig starting from Default and applying opts in
// order.
func New(opts ...Option) StoreConfig {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// LoadFile reads a YAML document at path directly, bypassing any
// process-wide config registry. Mirrors
// internal/config/local_config.go's LoadLocalConfig: starts from
// Default() and overlays whatever the file sets.
func LoadFile(path string) (StoreConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
