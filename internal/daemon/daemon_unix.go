//go:build !windows
// +build !windows

package daemon

import (
	"os/exec"
	"syscall"
)

// SetProcAttr sets the process attributes for daemonization on Unix systems.
func SetProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
