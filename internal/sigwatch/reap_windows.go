//go:build windows

package sigwatch

import (
	"os"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

// watchChildSignals is a no-op on Windows: child reaping happens implicitly
// inside os/exec.Cmd.Wait, there is no SIGCHLD to subscribe to. The
// returned nil channel blocks forever in Watch's select.
func watchChildSignals() chan os.Signal {
	return nil
}

// ReapAll has nothing to do on Windows; present only so callers don't need
// a build-tagged call site.
func ReapAll(log *logger.Logger) { _ = log }
