// Package sigwatch subscribes to OS signals on behalf of the wrapper
// process: SIGTERM/SIGINT/SIGHUP trigger the same shutdown path as a
// Control Front "shutdown" command, and (on POSIX) SIGCHLD drives
// asynchronous reaping of the wrapper's exited child processes.
package sigwatch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

// Watch installs the termination-signal and (on POSIX) SIGCHLD handlers
// and runs until ctx is cancelled. onTerminate is called once per
// received SIGTERM/SIGINT/SIGHUP; onChildSignal is called once per
// SIGCHLD notification and should reap with syscall.Wait4(..., WNOHANG, ...)
// in a loop since multiple children may have exited between notifications.
func Watch(ctx context.Context, log *logger.Logger, onTerminate func(), onChildSignal func()) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(termCh)

	childCh := watchChildSignals()
	if childCh != nil {
		defer signal.Stop(childCh)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-termCh:
			log.Info("sigwatch: received %s, requesting shutdown", sig)
			onTerminate()
		case <-childCh:
			if onChildSignal != nil {
				onChildSignal()
			}
		}
	}
}
