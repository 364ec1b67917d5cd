//go:build !windows

package sigwatch

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

// watchChildSignals subscribes to SIGCHLD so Watch can prompt the caller to
// reap exited children via syscall.Wait4 in WNOHANG mode.
func watchChildSignals() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGCHLD)
	return ch
}

// ReapAll drains every exited child of the calling process without
// blocking, as prompted by a SIGCHLD notification, logging the pid and
// status of each one reaped. It stops at the first ECHILD (no more
// children) or WNOHANG miss (nothing new to reap).
func ReapAll(log *logger.Logger) {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		log.Info("sigwatch: reaped pid=%d status=%v", pid, status)
	}
}
