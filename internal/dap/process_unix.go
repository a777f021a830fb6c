//go:build !windows

package dap

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup kills the adapter and everything it started (the flutter
// tool, the app build). The adapter leads its own session, so the negative
// PID reaches the whole group.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if pid > 0 {
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
		return nil
	}
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}

// setProcAttr starts the adapter in a new session so it becomes a process
// group leader.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
