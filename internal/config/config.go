// Package config loads the kernel configuration from yaml with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MODHOST_JOBS_WORKERS.
const EnvPrefix = "MODHOST_"

// DefaultPath is the config file read when none is given.
const DefaultPath = "modhost.yaml"

// Config holds all kernel configuration.
type Config struct {
	Kernel    KernelConfig    `yaml:"kernel" envPrefix:"KERNEL_"`
	Memory    MemoryConfig    `yaml:"memory" envPrefix:"MEMORY_"`
	Modules   ModulesConfig   `yaml:"modules" envPrefix:"MODULES_"`
	Signals   SignalsConfig   `yaml:"signals" envPrefix:"SIGNALS_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Jobs      JobsConfig      `yaml:"jobs" envPrefix:"JOBS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
}

// KernelConfig configures the tick loop.
type KernelConfig struct {
	Version        int     `yaml:"version" env:"VERSION"`
	TickRate       int     `yaml:"tick_rate" env:"TICK_RATE"` // ticks per second, 0 = unpaced
	FixedDeltaTime float64 `yaml:"fixed_delta_time" env:"FIXED_DELTA_TIME"`
}

// MemoryConfig configures the shared registry.
type MemoryConfig struct {
	Buckets    int     `yaml:"buckets" env:"BUCKETS"`
	LoadFactor float64 `yaml:"load_factor" env:"LOAD_FACTOR"`
}

// ModulesConfig configures discovery and hot reload.
type ModulesConfig struct {
	Dir           string `yaml:"dir" env:"DIR"`
	Watch         bool   `yaml:"watch" env:"WATCH"`
	WatchDebounce string `yaml:"watch_debounce" env:"WATCH_DEBOUNCE"`
}

// SignalsConfig configures the event bus.
type SignalsConfig struct {
	Buckets       int `yaml:"buckets" env:"BUCKETS"`
	QueueCapacity int `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`
}

// SchedulerConfig configures the periodic task scheduler.
type SchedulerConfig struct {
	Capacity int `yaml:"capacity" env:"CAPACITY"`
}

// JobsConfig configures the background job system.
type JobsConfig struct {
	Workers       int    `yaml:"workers" env:"WORKERS"`
	QueueCapacity int    `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`
	DrainTimeout  string `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"` // empty = wait forever
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Kernel: KernelConfig{
			Version:        0,
			TickRate:       60,
			FixedDeltaTime: 1.0 / 60.0,
		},
		Memory: MemoryConfig{
			Buckets:    256,
			LoadFactor: 0.75,
		},
		Modules: ModulesConfig{
			Dir:           "modules",
			WatchDebounce: "500ms",
		},
		Signals: SignalsConfig{
			Buckets:       32,
			QueueCapacity: 16,
		},
		Scheduler: SchedulerConfig{
			Capacity: 16,
		},
		Jobs: JobsConfig{
			Workers:       32,
			QueueCapacity: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "logs",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies MODHOST_* environment variables. Unset
// variables leave the loaded values alone.
func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// GetWatchDebounce returns the watcher debounce as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Modules.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetDrainTimeout returns how long shutdown waits for running jobs, or 0 to
// wait until they finish.
func (c *Config) GetDrainTimeout() time.Duration {
	if c.Jobs.DrainTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Jobs.DrainTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetTickInterval returns the pacing interval of the run loop, or 0 when
// ticks are unpaced.
func (c *Config) GetTickInterval() time.Duration {
	if c.Kernel.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Kernel.TickRate)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Kernel.TickRate < 0 {
		return fmt.Errorf("kernel.tick_rate must be >= 0, got %d", c.Kernel.TickRate)
	}
	if c.Kernel.FixedDeltaTime < 0 {
		return fmt.Errorf("kernel.fixed_delta_time must be >= 0, got %g", c.Kernel.FixedDeltaTime)
	}
	if c.Memory.Buckets <= 0 {
		return fmt.Errorf("memory.buckets must be > 0, got %d", c.Memory.Buckets)
	}
	if c.Memory.LoadFactor <= 0 || c.Memory.LoadFactor > 1 {
		return fmt.Errorf("memory.load_factor must be in (0, 1], got %g", c.Memory.LoadFactor)
	}
	if c.Modules.Dir == "" {
		return fmt.Errorf("modules.dir must not be empty")
	}
	if _, err := time.ParseDuration(c.Modules.WatchDebounce); c.Modules.WatchDebounce != "" && err != nil {
		return fmt.Errorf("invalid modules.watch_debounce %q: %w", c.Modules.WatchDebounce, err)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueCapacity <= 0 {
		return fmt.Errorf("jobs.queue_capacity must be > 0, got %d", c.Jobs.QueueCapacity)
	}
	if _, err := time.ParseDuration(c.Jobs.DrainTimeout); c.Jobs.DrainTimeout != "" && err != nil {
		return fmt.Errorf("invalid jobs.drain_timeout %q: %w", c.Jobs.DrainTimeout, err)
	}
	return c.Logging.validate()
}
