//go:build !windows

// Package procgroup configures and signals the process group of a spawned
// backend child so that a restart or shutdown reaches the whole tree, not
// just the immediate child.
package procgroup

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

// Configure ensures cmd runs in its own process group so that Signal can
// reach the entire tree (backend + anything it forks).
func Configure(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// ID returns the process group id for a started command, or 0 if unknown.
func ID(cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return 0
	}
	return pgid
}

// Signal delivers name ("SIGTERM" or "SIGKILL") to every process in pgid,
// logging through log if it is non-nil.
func Signal(pgid int, name string, log *logger.Logger) error {
	if pgid <= 0 {
		return fmt.Errorf("invalid process group id: %d", pgid)
	}

	var sig syscall.Signal
	switch name {
	case "SIGTERM":
		sig = syscall.SIGTERM
	case "SIGKILL":
		sig = syscall.SIGKILL
	default:
		return fmt.Errorf("unsupported signal: %s", name)
	}

	if log != nil {
		log.Warn("backend: sending %s to process group %d", name, pgid)
	}
	return syscall.Kill(-pgid, sig)
}
