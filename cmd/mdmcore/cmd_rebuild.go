package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdmcore/resolve/internal/pipeline"
)

var (
	rebuildInputPath string
	rebuildBatchSize int
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute clusters from scratch over a full input, without seeding prior cluster membership",
	Run:   runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildInputPath, "input", "", "path to a JSONL file of records (required)")
	rebuildCmd.Flags().IntVar(&rebuildBatchSize, "batch-size", 500, "records read per batch")
	_ = rebuildCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	defer a.Close()

	if err := ingestAndProcess(a, rebuildInputPath, pipeline.ModeFullRebuild, rebuildBatchSize, "rebuild"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitProcess)
	}
}
