package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdmcore/resolve/internal/lineage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config directory and lineage database",
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitUsage)
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		os.Exit(exitUsage)
	}

	store, err := lineage.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing lineage store: %v\n", err)
		os.Exit(exitLineage)
	}
	defer store.Close()

	fmt.Printf("Initialized lineage store at %s\n", cfg.Database.Path)
}
