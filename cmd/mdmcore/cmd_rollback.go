package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rollbackToEvent string

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo every merge event from --to-event onward, in reverse order",
	Run:   runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackToEvent, "to-event", "", "event id to roll back to, inclusive (required)")
	_ = rollbackCmd.MarkFlagRequired("to-event")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	defer a.Close()

	if err := a.store.Rollback(context.Background(), rollbackToEvent); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitLineage)
	}
	fmt.Printf("Rolled back to event %s\n", rollbackToEvent)
}
