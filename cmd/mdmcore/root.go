package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per the CLI contract: 0 success, 1 usage/config error,
// 2 processing error (batch partially applied or rejected), 3 lineage
// error (store unreachable or rollback target invalid).
const (
	exitOK       = 0
	exitUsage    = 1
	exitProcess  = 2
	exitLineage  = 3
)

var (
	// Version is set during build.
	Version = "0.1.0"

	configPath string
	logLevel   string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "mdmcore",
	Short: "Entity-resolution pipeline for master data",
	Long: `mdmcore ingests records from configured sources, matches and
clusters them into golden records, and maintains the cross-reference
lineage that lets every merge be queried or rolled back.

Examples:
  mdmcore init
  mdmcore process-batch --input records.jsonl --mode incremental
  mdmcore rebuild --input records.jsonl
  mdmcore inspect --golden-id g-1234
  mdmcore rollback --to-event evt-5678`,
	Version: Version,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "info", "log level (debug, info, warn, error)")
}
