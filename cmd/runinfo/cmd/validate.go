package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	runindex "github.com/beamkit/runindex"
)

var validateCmd = &cobra.Command{
	Use:   "validate <run-dir>",
	Short: "Cross-check the shards of a run",
	Long: `Validate opens a run directory and lists every consistency finding:
unreadable shards, partial source coverage, pulse count disagreements
and shard groups violating a configured fan-out convention.

The command exits non-zero when any warning is found.

Example:
  runinfo validate /data/r0034 -c runinfo.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.options()
	if err != nil {
		return err
	}

	run, err := runindex.OpenRun(cmd.Context(), args[0], opts...)
	if err != nil {
		return fmt.Errorf("failed to open run: %w", err)
	}
	defer run.Close()

	warnings := run.Warnings()
	if len(warnings) == 0 {
		fmt.Println("run is consistent: no warnings")
		return nil
	}

	for _, w := range warnings {
		fmt.Printf("[%s]", w.Code)
		if w.Source != "" {
			fmt.Printf(" source=%s", w.Source)
		}
		if w.Shard != "" {
			fmt.Printf(" shard=%s", w.Shard)
		}
		if len(w.Trains) > 0 {
			fmt.Printf(" trains=%d", len(w.Trains))
		}
		if w.Detail != "" {
			fmt.Printf(" %s", w.Detail)
		}
		fmt.Println()
	}
	return fmt.Errorf("run has %d warning(s)", len(warnings))
}
