package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	scheduleFile string
	env          string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gapwatch",
	Short: "gapwatch - pre-market gap-up qualification pipeline",
	Long: `gapwatch Unified CLI

Loads the day's symbol universe, fetches quotes at fixed checkpoints,
accumulates them into one dataset per trading day and reports the symbols
that pass the gap-up rule.

Usage:
  go run ./cmd/gapwatch [command]

Examples:
  go run ./cmd/gapwatch checkpoint list
  go run ./cmd/gapwatch checkpoint run --label 08:50
  go run ./cmd/gapwatch scheduler start
  go run ./cmd/gapwatch api --with-scheduler`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&scheduleFile, "schedule", "", "checkpoint schedule file (default is SCHEDULE_FILE)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
