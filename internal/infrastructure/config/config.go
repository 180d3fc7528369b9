package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration.
type Config struct {
	Pipeline  PipelineConfig
	Scheduler SchedulerConfig
	Stall     StallConfig
	Server    ServerConfig
	Logging   LogConfig
}

// PipelineConfig holds per-stage defaults.
type PipelineConfig struct {
	// DefaultCapacity is the slot count used when a topology does not name
	// one. Must be a power of two.
	DefaultCapacity int `envconfig:"PIPELINE_CAPACITY" default:"1024"`
	// MaxWorkers caps the physical workers of any single processor.
	MaxWorkers int `envconfig:"PIPELINE_MAX_WORKERS" default:"8"`
	// ErrorPolicy is the default handler-failure policy: "skip",
	// "retry:<n>", or "halt". The default is deliberately explicit.
	ErrorPolicy string `envconfig:"PIPELINE_ERROR_POLICY" default:"skip"`
}

// SchedulerConfig holds thread-assignment tuning.
type SchedulerConfig struct {
	MaxThreads    int           `envconfig:"SCHED_MAX_THREADS" default:"0"` // 0 = GOMAXPROCS
	EvalInterval  time.Duration `envconfig:"SCHED_EVAL_INTERVAL" default:"50ms"`
	SplitPending  int64         `envconfig:"SCHED_SPLIT_PENDING" default:"64"`
	MergePending  int64         `envconfig:"SCHED_MERGE_PENDING" default:"1"`
	MergeIdleWait time.Duration `envconfig:"SCHED_MERGE_IDLE_WAIT" default:"1ms"`
	Hysteresis    int           `envconfig:"SCHED_HYSTERESIS" default:"3"`
	Cooldown      time.Duration `envconfig:"SCHED_COOLDOWN" default:"500ms"`
}

// StallConfig holds stalled-worker detection settings.
type StallConfig struct {
	// ClaimTimeout is how long a worker may hold a claim before it is
	// considered stalled.
	ClaimTimeout time.Duration `envconfig:"STALL_CLAIM_TIMEOUT" default:"5s"`
	// CheckInterval is how often groups are scanned for stalled workers.
	CheckInterval time.Duration `envconfig:"STALL_CHECK_INTERVAL" default:"1s"`
	// Grace is how long a canceled worker gets to yield before the stall is
	// escalated as fatal to its group.
	Grace time.Duration `envconfig:"STALL_GRACE" default:"2s"`
}

// ServerConfig holds the operational HTTP surface settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			DefaultCapacity: 1024,
			MaxWorkers:      8,
			ErrorPolicy:     "skip",
		},
		Scheduler: SchedulerConfig{
			MaxThreads:    0,
			EvalInterval:  50 * time.Millisecond,
			SplitPending:  64,
			MergePending:  1,
			MergeIdleWait: time.Millisecond,
			Hysteresis:    3,
			Cooldown:      500 * time.Millisecond,
		},
		Stall: StallConfig{
			ClaimTimeout:  5 * time.Second,
			CheckInterval: time.Second,
			Grace:         2 * time.Second,
		},
		Server: ServerConfig{
			Port: "8600",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
