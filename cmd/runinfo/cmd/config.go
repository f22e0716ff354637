package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	runindex "github.com/beamkit/runindex"
	"github.com/beamkit/runindex/resource"
)

// FanOutRule declares the expected shard count for sources matching a
// glob pattern.
type FanOutRule struct {
	Pattern string `mapstructure:"pattern"`
	N       int    `mapstructure:"n"`
}

// Limits bounds resource usage while scanning and streaming.
type Limits struct {
	MaxConcurrentReads int64 `mapstructure:"max_concurrent_reads"`
	MemoryLimitBytes   int64 `mapstructure:"memory_limit_bytes"`
	IOLimitBytesPerSec int64 `mapstructure:"io_limit_bytes_per_sec"`
}

// Config is the runinfo configuration file.
type Config struct {
	FanOut        []FanOutRule `mapstructure:"fan_out"`
	Limits        Limits       `mapstructure:"limits"`
	MaxOpenShards int          `mapstructure:"max_open_shards"`
	LogLevel      string       `mapstructure:"log_level"`
}

// loadConfig reads the configuration file, if one was given, and
// applies CLI flag overrides on top.
func loadConfig() (*Config, error) {
	cfg := &Config{}

	if cfgFile != "" {
		v := viper.New()
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if maxOpenShards > 0 {
		cfg.MaxOpenShards = maxOpenShards
	}
	if maxReads > 0 {
		cfg.Limits.MaxConcurrentReads = maxReads
	}

	return cfg, nil
}

// options translates the configuration into run open options.
func (c *Config) options() ([]runindex.Option, error) {
	var opts []runindex.Option

	for _, r := range c.FanOut {
		if r.Pattern == "" || r.N <= 0 {
			return nil, fmt.Errorf("invalid fan_out rule: pattern=%q n=%d", r.Pattern, r.N)
		}
		opts = append(opts, runindex.WithFanOutRule(r.Pattern, r.N))
	}
	if c.MaxOpenShards > 0 {
		opts = append(opts, runindex.WithMaxOpenShards(c.MaxOpenShards))
	}
	opts = append(opts, runindex.WithResourceConfig(resource.Config{
		MaxConcurrentReads: c.Limits.MaxConcurrentReads,
		MemoryLimitBytes:   c.Limits.MemoryLimitBytes,
		IOLimitBytesPerSec: c.Limits.IOLimitBytesPerSec,
	}))

	if c.LogLevel != "" {
		level, err := parseLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runindex.WithLogLevel(level))
	}

	return opts, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
