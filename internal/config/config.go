// Package config holds the engine tunables loaded from a YAML file.
// Deployment wiring (ports, DSNs, secrets) stays in environment variables;
// this file is for the knobs operators retune without a rebuild: queueing,
// admission, retry, breaker, worker, sweeper, and cache behavior.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mediagen/internal/domain"
)

type Config struct {
	Queue     QueueConfig     `yaml:"queue"`
	Admission AdmissionConfig `yaml:"admission"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Worker    WorkerConfig    `yaml:"worker"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Cache     CacheConfig     `yaml:"cache"`
}

// QueueConfig tunes dispatch ordering.
type QueueConfig struct {
	AgeBoostPerMinute float64 `yaml:"age_boost_per_minute"`
	MaxAgeBoost       float64 `yaml:"max_age_boost"`
	MaxTypeBoost      float64 `yaml:"max_type_boost"`
}

// AdmissionConfig bounds how much concurrent work the platform accepts.
type AdmissionConfig struct {
	MaxGenerating int `yaml:"max_generating"`
	MaxPerUser    int `yaml:"max_per_user"`
	MaxQueueDepth int `yaml:"max_queue_depth"`
}

// RetryConfig shapes the backoff schedule for retryable failures.
// MaxAttempts maps content type to its attempt budget; types not listed
// use DefaultMaxAttempts.
type RetryConfig struct {
	BaseDelaySeconds   int            `yaml:"base_delay_seconds"`
	MaxDelayMinutes    int            `yaml:"max_delay_minutes"`
	Multiplier         float64        `yaml:"multiplier"`
	Jitter             float64        `yaml:"jitter"`
	DefaultMaxAttempts int            `yaml:"default_max_attempts"`
	MaxAttempts        map[string]int `yaml:"max_attempts"`
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds) * time.Second
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMinutes) * time.Minute
}

// BreakerConfig tunes the per-provider failure-rate switch.
type BreakerConfig struct {
	WindowSeconds    int     `yaml:"window_seconds"`
	FailureThreshold float64 `yaml:"failure_threshold"`
	MinSamples       int     `yaml:"min_samples"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`
	HalfOpenTrials   int     `yaml:"half_open_trials"`
}

func (c BreakerConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// WorkerConfig tunes the dispatch loop. A claim's deadline is the content
// type's estimated duration times DeadlineFactor, floored at MinDeadline.
type WorkerConfig struct {
	Count              int     `yaml:"count"`
	PollSeconds        int     `yaml:"poll_seconds"`
	RefreshBatch       int     `yaml:"refresh_batch"`
	DeadlineFactor     float64 `yaml:"deadline_factor"`
	MinDeadlineSeconds int     `yaml:"min_deadline_seconds"`
	ReaperSeconds      int     `yaml:"reaper_seconds"`
}

func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c WorkerConfig) MinDeadline() time.Duration {
	return time.Duration(c.MinDeadlineSeconds) * time.Second
}

func (c WorkerConfig) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperSeconds) * time.Second
}

// SweeperConfig tunes expiration and failed-record cleanup.
type SweeperConfig struct {
	IntervalMinutes      int `yaml:"interval_minutes"`
	BatchSize            int `yaml:"batch_size"`
	FailedRetentionHours int `yaml:"failed_retention_hours"`
}

func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c SweeperConfig) FailedRetention() time.Duration {
	return time.Duration(c.FailedRetentionHours) * time.Hour
}

// CacheConfig tunes the process-local read cache.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Default returns the tunables the engine ships with.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			AgeBoostPerMinute: 2.0,
			MaxAgeBoost:       120,
			MaxTypeBoost:      40,
		},
		Admission: AdmissionConfig{
			MaxGenerating: 32,
			MaxPerUser:    4,
			MaxQueueDepth: 1000,
		},
		Retry: RetryConfig{
			BaseDelaySeconds:   10,
			MaxDelayMinutes:    10,
			Multiplier:         2.0,
			Jitter:             0.2,
			DefaultMaxAttempts: 3,
		},
		Breaker: BreakerConfig{
			WindowSeconds:    60,
			FailureThreshold: 0.5,
			MinSamples:       10,
			CooldownSeconds:  30,
			HalfOpenTrials:   3,
		},
		Worker: WorkerConfig{
			Count:              4,
			PollSeconds:        2,
			RefreshBatch:       200,
			DeadlineFactor:     3.0,
			MinDeadlineSeconds: 60,
			ReaperSeconds:      30,
		},
		Sweeper: SweeperConfig{
			IntervalMinutes:      15,
			BatchSize:            500,
			FailedRetentionHours: 7 * 24,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
	}
}

// Load reads tunables from path, layered over Default. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.Queue.AgeBoostPerMinute < 0 || c.Queue.MaxAgeBoost < 0 || c.Queue.MaxTypeBoost < 0 {
		return fmt.Errorf("queue boosts must not be negative")
	}
	if c.Admission.MaxGenerating < 1 {
		return fmt.Errorf("admission.max_generating must be at least 1")
	}
	if c.Admission.MaxPerUser < 1 {
		return fmt.Errorf("admission.max_per_user must be at least 1")
	}
	if c.Admission.MaxQueueDepth < 1 {
		return fmt.Errorf("admission.max_queue_depth must be at least 1")
	}
	if c.Retry.BaseDelaySeconds < 1 {
		return fmt.Errorf("retry.base_delay_seconds must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be within [0, 1]")
	}
	if c.Retry.DefaultMaxAttempts < 1 {
		return fmt.Errorf("retry.default_max_attempts must be at least 1")
	}
	for name, attempts := range c.Retry.MaxAttempts {
		if !domain.ContentType(name).Valid() {
			return fmt.Errorf("retry.max_attempts: unknown content type %q", name)
		}
		if attempts < 1 {
			return fmt.Errorf("retry.max_attempts[%s] must be at least 1", name)
		}
	}
	if c.Breaker.WindowSeconds < 1 {
		return fmt.Errorf("breaker.window_seconds must be at least 1")
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold >= 1 {
		return fmt.Errorf("breaker.failure_threshold must be within (0, 1)")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be at least 1")
	}
	if c.Worker.DeadlineFactor < 1 {
		return fmt.Errorf("worker.deadline_factor must be at least 1")
	}
	if c.Sweeper.BatchSize < 1 {
		return fmt.Errorf("sweeper.batch_size must be at least 1")
	}
	if c.Sweeper.FailedRetentionHours < 1 {
		return fmt.Errorf("sweeper.failed_retention_hours must be at least 1")
	}
	if c.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache.ttl_seconds must be at least 1")
	}
	return nil
}

// RetryAttempts resolves the attempt budget per content type, falling back
// to DefaultMaxAttempts for unlisted types.
func (c Config) RetryAttempts() map[domain.ContentType]int {
	out := make(map[domain.ContentType]int, len(domain.ContentTypes()))
	for _, ct := range domain.ContentTypes() {
		out[ct] = c.Retry.DefaultMaxAttempts
	}
	for name, attempts := range c.Retry.MaxAttempts {
		out[domain.ContentType(name)] = attempts
	}
	return out
}
