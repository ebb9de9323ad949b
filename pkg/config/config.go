// Package config holds the tunables for the NubDB storage engine: AOF
// path and flush policy, compaction thresholds, and the hash index's
// initial capacity and load factor.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// FlushPolicy selects when the AOF writer makes buffered appends durable.
type FlushPolicy int

const (
	// FlushAlways flushes after every append.
	FlushAlways FlushPolicy = iota
	// FlushEveryNOps flushes once ops-since-flush reaches N.
	FlushEveryNOps
	// FlushEveryNSeconds flushes once wall-clock has advanced N seconds
	// since the last flush.
	FlushEveryNSeconds
)

func (p FlushPolicy) String() string {
	switch p {
	case FlushAlways:
		return "always"
	case FlushEveryNOps:
		return "every-n-ops"
	case FlushEveryNSeconds:
		return "every-n-seconds"
	default:
		return fmt.Sprintf("FlushPolicy(%d)", int(p))
	}
}

const (
	// DefaultAOFPath is the on-disk log file created in the working
	// directory when no path is given.
	DefaultAOFPath = "nubdb.aof"

	// KeyMax is the maximum key length in bytes accepted by the engine
	// and enforced by the replayer at startup.
	KeyMax = 4096

	// ValueMax is the maximum value length in bytes, 1 MiB.
	ValueMax = 1 << 20

	// DefaultInitialCapacity is the hash index's starting slot count.
	DefaultInitialCapacity = 1024

	// DefaultLoadFactorPercent is the load factor threshold (90%) beyond
	// which the index resizes.
	DefaultLoadFactorPercent = 90

	// DefaultRewriteThresholdBytes is the AOF size (64 MiB) that
	// triggers a compaction rewrite.
	DefaultRewriteThresholdBytes = 64 * 1024 * 1024

	// DefaultCompactionInterval is how often the compaction worker
	// wakes to check the AOF size.
	DefaultCompactionInterval = 10 * time.Second

	// DefaultCleanupOpsInterval is how many mutating operations the
	// engine performs between its own expired-entry cleanups (see
	// pkg/engine).
	DefaultCleanupOpsInterval = 100
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full set of tunables for one Engine instance. Multiple
// Configs (and Engines) with independent AOFPath values may coexist in a
// single process; there is no process-wide global state.
type Config struct {
	// AOFPath is the path to the append-only log file. Empty disables
	// persistence (pure in-memory mode).
	AOFPath string `json:"aof_path"`

	// FlushPolicy and its parameters.
	FlushPolicy     FlushPolicy   `json:"flush_policy"`
	FlushEveryNOps  uint64        `json:"flush_every_n_ops"`
	FlushEveryNSecs time.Duration `json:"flush_every_n_seconds"`

	// Index configuration.
	InitialCapacity   int `json:"initial_capacity"`
	LoadFactorPercent int `json:"load_factor_percent"`

	// Compaction configuration.
	RewriteThresholdBytes int64         `json:"rewrite_threshold_bytes"`
	CompactionInterval    time.Duration `json:"compaction_interval"`

	// CleanupOpsInterval is how often (in mutating ops) the engine
	// removes expired entries on its own. Zero disables the automatic
	// cleanup; Engine.CleanupExpired can still be called directly.
	CleanupOpsInterval uint64 `json:"cleanup_ops_interval"`
}

// NewDefaultConfig returns a Config with the defaults named in spec.md.
// Pass DefaultAOFPath (or any path) to enable persistence; empty disables
// the AOF entirely for pure in-memory use.
func NewDefaultConfig(aofPath string) *Config {
	return &Config{
		AOFPath:               aofPath,
		FlushPolicy:           FlushEveryNOps,
		FlushEveryNOps:        1,
		FlushEveryNSecs:       time.Second,
		InitialCapacity:       DefaultInitialCapacity,
		LoadFactorPercent:     DefaultLoadFactorPercent,
		RewriteThresholdBytes: DefaultRewriteThresholdBytes,
		CompactionInterval:    DefaultCompactionInterval,
		CleanupOpsInterval:    DefaultCleanupOpsInterval,
	}
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.InitialCapacity <= 0 {
		return fmt.Errorf("%w: initial capacity must be positive", ErrInvalidConfig)
	}
	if c.LoadFactorPercent <= 0 || c.LoadFactorPercent > 100 {
		return fmt.Errorf("%w: load factor percent must be in (0, 100]", ErrInvalidConfig)
	}
	if c.RewriteThresholdBytes <= 0 {
		return fmt.Errorf("%w: rewrite threshold must be positive", ErrInvalidConfig)
	}
	if c.CompactionInterval <= 0 {
		return fmt.Errorf("%w: compaction interval must be positive", ErrInvalidConfig)
	}
	switch c.FlushPolicy {
	case FlushAlways:
		// no parameters
	case FlushEveryNOps:
		if c.FlushEveryNOps == 0 {
			return fmt.Errorf("%w: flush_every_n_ops must be positive", ErrInvalidConfig)
		}
	case FlushEveryNSeconds:
		if c.FlushEveryNSecs <= 0 {
			return fmt.Errorf("%w: flush_every_n_seconds must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown flush policy %d", ErrInvalidConfig, c.FlushPolicy)
	}
	return nil
}

// LoadFromFile reads a JSON-encoded Config from path.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveToFile writes cfg as JSON to path, atomically via a temp file and
// rename, matching the durability discipline used elsewhere in the
// engine for the AOF and compaction outputs.
func (c *Config) SaveToFile(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}
	return nil
}
