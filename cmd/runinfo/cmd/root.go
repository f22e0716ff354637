package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile       string
	logLevel      string
	maxOpenShards int
	maxReads      int64
)

var rootCmd = &cobra.Command{
	Use:   "runinfo",
	Short: "Inspect sharded acquisition runs",
	Long: `Runinfo opens a run directory of shard containers, validates the
shards against each other and reports what the run actually holds.

Features:
  - Parallel shard discovery and metadata scanning
  - Cross-shard consistency validation with structured warnings
  - Train/record accounting across all addressing schemes
  - Fan-out conventions configurable per source pattern`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&maxOpenShards, "max-open-shards", 0,
		"Override the shard handle pool size")
	rootCmd.PersistentFlags().Int64Var(&maxReads, "max-reads", 0,
		"Override the number of concurrent shard reads")
}
