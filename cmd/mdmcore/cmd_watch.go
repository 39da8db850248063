package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdmcore/resolve/internal/daemon"
	"github.com/mdmcore/resolve/internal/pipeline"
)

var (
	watchInputPath   string
	watchPollSeconds int
	watchForeground  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the background micro-batch watcher",
}

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start polling --input for new records on an interval, folding each batch in incrementally",
	Run:   runWatchStart,
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watcher",
	Run:   runWatchStop,
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the watcher is running",
	Run:   runWatchStatus,
}

func init() {
	watchStartCmd.Flags().StringVar(&watchInputPath, "input", "", "path to a JSONL file polled for new lines (required)")
	watchStartCmd.Flags().IntVar(&watchPollSeconds, "poll-seconds", 30, "seconds between polls")
	watchStartCmd.Flags().BoolVar(&watchForeground, "foreground", false, "run the poll loop in this process instead of forking")
	_ = watchStartCmd.MarkFlagRequired("input")

	watchCmd.AddCommand(watchStartCmd, watchStopCmd, watchStatusCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatchStart(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	d := daemon.New(filepath.Dir(cfg.Database.Path), Version)

	if watchForeground {
		if err := d.Start("entity", watchPollSeconds); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitProcess)
		}
		defer func() {
			d.RemovePID()
			d.RemoveState()
		}()
		runWatchLoop(watchInputPath, watchPollSeconds)
		return
	}

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitProcess)
	}
	child := exec.Command(self, "watch", "start", "--input", watchInputPath,
		"--poll-seconds", fmt.Sprintf("%d", watchPollSeconds), "--foreground")
	child.Stdout = nil
	child.Stderr = nil
	daemon.SetProcAttr(child)
	if err := child.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting watcher: %v\n", err)
		os.Exit(exitProcess)
	}
	fmt.Printf("Watcher started, pid=%d\n", child.Process.Pid)
}

// runWatchLoop polls inputPath every pollSeconds, running each available
// batch through the pipeline in incremental mode until interrupted.
func runWatchLoop(inputPath string, pollSeconds int) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	defer a.Close()

	ticker := time.NewTicker(time.Duration(pollSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return
		case <-ticker.C:
			if err := ingestAndProcess(a, inputPath, pipeline.ModeIncremental, 500, "watch"); err != nil {
				fmt.Fprintf(os.Stderr, "watch batch error: %v\n", err)
			}
		}
	}
}

func runWatchStop(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	d := daemon.New(filepath.Dir(cfg.Database.Path), Version)
	if err := d.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitProcess)
	}
	fmt.Println("Watcher stopped")
}

func runWatchStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	d := daemon.New(filepath.Dir(cfg.Database.Path), Version)
	status := d.Status()
	if !status.Running {
		fmt.Println("Watcher is not running")
		return
	}
	fmt.Printf("Watcher running: pid=%d entity=%s poll_seconds=%d uptime=%s\n",
		status.PID, status.EntityName, status.PollSeconds, status.Uptime.Round(time.Second))
}
