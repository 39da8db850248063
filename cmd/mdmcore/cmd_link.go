package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	linkRecordID string
	linkSourceID string
	linkGoldenID string
	linkActor    string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manually attach a source record to a golden record, overriding the automated match",
	Run:   runLink,
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Manually detach a source record from its current golden record",
	Run:   runUnlink,
}

func init() {
	linkCmd.Flags().StringVar(&linkRecordID, "record", "", "source record id (required)")
	linkCmd.Flags().StringVar(&linkSourceID, "source", "", "source system id (required)")
	linkCmd.Flags().StringVar(&linkGoldenID, "golden", "", "target golden record id (required)")
	linkCmd.Flags().StringVar(&linkActor, "actor", "steward", "actor recorded on the LINK event")
	_ = linkCmd.MarkFlagRequired("record")
	_ = linkCmd.MarkFlagRequired("source")
	_ = linkCmd.MarkFlagRequired("golden")
	rootCmd.AddCommand(linkCmd)

	unlinkCmd.Flags().StringVar(&linkRecordID, "record", "", "source record id (required)")
	unlinkCmd.Flags().StringVar(&linkSourceID, "source", "", "source system id (required)")
	unlinkCmd.Flags().StringVar(&linkActor, "actor", "steward", "actor recorded on the UNLINK event")
	_ = unlinkCmd.MarkFlagRequired("record")
	_ = unlinkCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(unlinkCmd)
}

func runLink(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	defer a.Close()

	if err := a.pipe.Link(context.Background(), linkRecordID, linkSourceID, linkGoldenID, linkActor); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitLineage)
	}
	fmt.Printf("Linked %s/%s to %s\n", linkSourceID, linkRecordID, linkGoldenID)
}

func runUnlink(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	defer a.Close()

	if err := a.pipe.Unlink(context.Background(), linkRecordID, linkSourceID, linkActor); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitLineage)
	}
	fmt.Printf("Unlinked %s/%s\n", linkSourceID, linkRecordID)
}
