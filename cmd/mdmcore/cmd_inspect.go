package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var timeZero time.Time

var (
	inspectGoldenID string
	inspectRecordID string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a golden record or a source record's cross-reference as JSON",
	Run:   runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectGoldenID, "golden-id", "", "golden record id to print")
	inspectCmd.Flags().StringVar(&inspectRecordID, "record-id", "", "source record id to print related golden records for")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) {
	if inspectGoldenID == "" && inspectRecordID == "" {
		fmt.Fprintln(os.Stderr, "Error: one of --golden-id or --record-id is required")
		os.Exit(exitUsage)
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	defer a.Close()

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if inspectGoldenID != "" {
		gr, err := a.store.GetGoldenRecord(ctx, inspectGoldenID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitLineage)
		}
		if err := enc.Encode(gr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitProcess)
		}
		return
	}

	related, err := a.store.RelatedEntities(ctx, inspectRecordID, timeZero)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitLineage)
	}
	if err := enc.Encode(related); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitProcess)
	}
}
