//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

// Configure is a no-op on Windows; CreateProcess-based job objects would be
// the native equivalent but are outside this package's scope.
func Configure(cmd *exec.Cmd) {
	_ = cmd
}

// ID always returns 0 on Windows.
func ID(cmd *exec.Cmd) int {
	_ = cmd
	return 0
}

// Signal is unsupported on Windows; callers fall back to cmd.Process.Kill.
func Signal(pgid int, name string, log *logger.Logger) error {
	_ = pgid
	_ = name
	_ = log
	return syscall.EWINDOWS
}
