package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdmcore/resolve/internal/dependencies"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check reachability of the configured embedding provider and vector index",
	Run:   runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}

	result := dependencies.Check(cfg)
	fmt.Print(dependencies.FormatDoctorReport(result))
	if result.HasAnyMissing() {
		os.Exit(exitProcess)
	}
}
