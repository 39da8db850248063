// Package daemon manages the long-running micro-batch watcher process:
// a PID/state file pair that lets the CLI report whether a background
// mdmcore instance is running and stop it.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/mdmcore/resolve/internal/logging"
)

var log = logging.GetLogger("daemon")

const (
	PIDFileName   = "mdmcore.pid"
	StateFileName = "mdmcore.state"
)

// State is the watcher state persisted to disk while running.
type State struct {
	PID         int       `json:"pid"`
	StartTime   time.Time `json:"start_time"`
	Version     string    `json:"version"`
	EntityName  string    `json:"entity_name"`
	PollSeconds int       `json:"poll_seconds"`
}

// Status is the watcher status reported by `mdmcore watch status`.
type Status struct {
	Running     bool          `json:"running"`
	PID         int           `json:"pid,omitempty"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	Version     string        `json:"version,omitempty"`
	EntityName  string        `json:"entity_name,omitempty"`
	PollSeconds int           `json:"poll_seconds,omitempty"`
}

// Daemon manages the watcher process's PID and state files under
// configDir.
type Daemon struct {
	configDir string
	version   string
}

// New creates a Daemon rooted at configDir.
func New(configDir, version string) *Daemon {
	return &Daemon{configDir: configDir, version: version}
}

// PIDPath returns the path to the PID file.
func (d *Daemon) PIDPath() string {
	return filepath.Join(d.configDir, PIDFileName)
}

// StatePath returns the path to the state file.
func (d *Daemon) StatePath() string {
	return filepath.Join(d.configDir, StateFileName)
}

// WritePID writes the current process PID to the PID file.
func (d *Daemon) WritePID() error {
	pid := os.Getpid()
	return os.WriteFile(d.PIDPath(), []byte(strconv.Itoa(pid)), 0644)
}

// ReadPID reads the PID from the PID file.
func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.PIDPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// RemovePID removes the PID file.
func (d *Daemon) RemovePID() error {
	return os.Remove(d.PIDPath())
}

// WriteState writes the watcher state to disk.
func (d *Daemon) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.StatePath(), data, 0644)
}

// ReadState reads the watcher state from disk.
func (d *Daemon) ReadState() (*State, error) {
	data, err := os.ReadFile(d.StatePath())
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// RemoveState removes the state file.
func (d *Daemon) RemoveState() error {
	return os.Remove(d.StatePath())
}

// IsRunning reports whether the PID file names a live process.
func (d *Daemon) IsRunning() bool {
	pid, err := d.ReadPID()
	if err != nil {
		return false
	}
	return d.isProcessRunning(pid)
}

func (d *Daemon) isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Status returns the current watcher status, cleaning up a stale PID
// file if the named process is gone.
func (d *Daemon) Status() *Status {
	status := &Status{Running: false}

	pid, err := d.ReadPID()
	if err != nil {
		return status
	}

	if !d.isProcessRunning(pid) {
		d.RemovePID()
		d.RemoveState()
		return status
	}

	status.Running = true
	status.PID = pid

	if state, err := d.ReadState(); err == nil {
		status.Version = state.Version
		status.EntityName = state.EntityName
		status.PollSeconds = state.PollSeconds
		status.Uptime = time.Since(state.StartTime)
	}
	return status
}

// Start records the current process as the running watcher.
func (d *Daemon) Start(entityName string, pollSeconds int) error {
	log.Info("starting watcher", "entity", entityName, "poll_seconds", pollSeconds)

	if d.IsRunning() {
		return fmt.Errorf("watcher is already running")
	}

	if err := d.WritePID(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	state := &State{
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		Version:     d.version,
		EntityName:  entityName,
		PollSeconds: pollSeconds,
	}
	if err := d.WriteState(state); err != nil {
		d.RemovePID()
		return fmt.Errorf("write state file: %w", err)
	}

	log.Info("watcher started", "pid", state.PID, "version", d.version)
	return nil
}

// Stop signals the running watcher to shut down, escalating from
// SIGTERM to SIGKILL if it does not exit within five seconds.
func (d *Daemon) Stop() error {
	log.Info("stopping watcher")

	pid, err := d.ReadPID()
	if err != nil {
		return fmt.Errorf("watcher is not running (no PID file)")
	}

	if !d.isProcessRunning(pid) {
		d.RemovePID()
		d.RemoveState()
		return fmt.Errorf("watcher is not running (stale PID file)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	log.Debug("sending SIGTERM", "pid", pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		if !d.isProcessRunning(pid) {
			d.RemovePID()
			d.RemoveState()
			log.Info("watcher stopped gracefully", "pid", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	log.Warn("watcher did not stop gracefully, sending SIGKILL", "pid", pid)
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("send SIGKILL: %w", err)
	}

	d.RemovePID()
	d.RemoveState()
	log.Info("watcher killed", "pid", pid)
	return nil
}
