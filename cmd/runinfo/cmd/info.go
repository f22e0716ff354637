package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	runindex "github.com/beamkit/runindex"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <run-dir>",
	Short: "Summarize a run directory",
	Long: `Info opens a run directory, validates its shards and prints a
summary: train span, record count, sources by kind and any problems
found along the way.

Example:
  runinfo info /data/r0034
  runinfo info /data/r0034 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Emit the report as JSON")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	rep := run.Report()
	if infoJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Print(rep.Summary())
	return nil
}
