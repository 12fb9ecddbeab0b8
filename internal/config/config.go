// Package config loads the master's TOML configuration, following the
// load/override/validate three-step shape of
// controlplane/s3-uploader/internal/config: defaults, then a TOML file,
// then PINGSWEEP_* environment overrides, then Validate rejects anything
// incomplete or unsupported.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// WorkerKind selects how worker processes are deployed.
type WorkerKind string

const (
	WorkerKindLocal  WorkerKind = "local"
	WorkerKindRemote WorkerKind = "remote"
)

// Config is the complete master configuration.
type Config struct {
	Workers WorkersConfig `toml:"workers"`
	Master  MasterConfig  `toml:"master"`
	Data    DataConfig    `toml:"data"`
}

// WorkersConfig controls the worker pool a master spawns.
type WorkersConfig struct {
	Kind           WorkerKind `toml:"kind"`
	Count          int        `toml:"count"`
	MaxConnections int        `toml:"max_connections"`
	RetryLimit     int        `toml:"retry_limit"`
	TimeoutMillis  int        `toml:"timeout_ms"`
}

// MasterConfig controls master-only behavior.
type MasterConfig struct {
	FatalFailureThreshold int    `toml:"fatal_failure_threshold"`
	StartAddress          string `toml:"start_address"`
}

// DataConfig locates on-disk state.
type DataConfig struct {
	Dir       string `toml:"dir"`
	SocketDir string `toml:"socket_dir"`
}

// Timeout returns Workers.TimeoutMillis as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Workers.TimeoutMillis) * time.Millisecond
}

// DefaultConfig returns a Config with sensible defaults, mirroring
// spec §6's worker invocation defaults and §9's fatal-failure-threshold
// suggestion of 2048 (expressed here as "fatal past 2048", i.e. the
// 2049th all-error /24 trips it).
func DefaultConfig() *Config {
	return &Config{
		Workers: WorkersConfig{
			Kind:           WorkerKindLocal,
			Count:          4,
			MaxConnections: 1024,
			RetryLimit:     2,
			TimeoutMillis:  3500,
		},
		Master: MasterConfig{
			FatalFailureThreshold: 2048,
			StartAddress:          "0.0.0.0",
		},
		Data: DataConfig{
			Dir:       "./data",
			SocketDir: "./sockets",
		},
	}
}

// Load reads a TOML file at path (if non-empty), applies it over the
// defaults, then applies PINGSWEEP_* environment overrides. It does not
// call Validate; callers decide when to validate (e.g. after applying
// CLI flag overrides on top).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PINGSWEEP_WORKERS_KIND"); v != "" {
		cfg.Workers.Kind = WorkerKind(v)
	}
	if v, ok := envInt("PINGSWEEP_WORKERS_COUNT"); ok {
		cfg.Workers.Count = v
	}
	if v, ok := envInt("PINGSWEEP_WORKERS_MAX_CONNECTIONS"); ok {
		cfg.Workers.MaxConnections = v
	}
	if v, ok := envInt("PINGSWEEP_WORKERS_RETRY_LIMIT"); ok {
		cfg.Workers.RetryLimit = v
	}
	if v, ok := envInt("PINGSWEEP_WORKERS_TIMEOUT_MS"); ok {
		cfg.Workers.TimeoutMillis = v
	}
	if v, ok := envInt("PINGSWEEP_MASTER_FATAL_FAILURE_THRESHOLD"); ok {
		cfg.Master.FatalFailureThreshold = v
	}
	if v := os.Getenv("PINGSWEEP_MASTER_START_ADDRESS"); v != "" {
		cfg.Master.StartAddress = v
	}
	if v := os.Getenv("PINGSWEEP_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("PINGSWEEP_DATA_SOCKET_DIR"); v != "" {
		cfg.Data.SocketDir = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate rejects incomplete or unsupported configuration. Remote
// workers are parsed without error but always fail validation: the
// master doesn't yet know how to spawn or reach one.
func (c *Config) Validate() error {
	switch c.Workers.Kind {
	case WorkerKindLocal:
	case WorkerKindRemote:
		return fmt.Errorf("config: workers.kind \"remote\" is not supported yet")
	default:
		return fmt.Errorf("config: workers.kind must be \"local\" or \"remote\", got %q", c.Workers.Kind)
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("config: workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Workers.MaxConnections <= 0 {
		return fmt.Errorf("config: workers.max_connections must be positive, got %d", c.Workers.MaxConnections)
	}
	if c.Workers.RetryLimit < 0 {
		return fmt.Errorf("config: workers.retry_limit must not be negative, got %d", c.Workers.RetryLimit)
	}
	if c.Workers.TimeoutMillis <= 0 {
		return fmt.Errorf("config: workers.timeout_ms must be positive, got %d", c.Workers.TimeoutMillis)
	}
	if c.Master.FatalFailureThreshold <= 0 {
		return fmt.Errorf("config: master.fatal_failure_threshold must be positive, got %d", c.Master.FatalFailureThreshold)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("config: data.dir must not be empty")
	}
	if c.Data.SocketDir == "" {
		return fmt.Errorf("config: data.socket_dir must not be empty")
	}
	return nil
}
