// Package acceptloop implements the accept-failure-counting loop shared by
// the Control and REPL fronts: accept, dispatch to a
// per-connection handler goroutine, and treat five consecutive accept
// failures as fatal.
package acceptloop

import (
	"errors"
	"fmt"
	"net"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

// Run accepts connections from ln until it is closed or maxFailures
// consecutive Accept calls fail, spawning handle(conn) in its own goroutine
// for each successful accept. onFailure, if non-nil, is called once per
// accept error (for a Metrics counter); it may be nil. Run returns nil if
// ln was closed deliberately (net.ErrClosed), or the final accept error
// once the failure budget is exhausted.
func Run(ln net.Listener, maxFailures int, log *logger.Logger, name string, onFailure func(), handle func(net.Conn)) error {
	failures := 0

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			failures++
			if onFailure != nil {
				onFailure()
			}
			log.Warn("%s: accept error (%d/%d): %v", name, failures, maxFailures, err)
			if failures >= maxFailures {
				return fmt.Errorf("%s: %d consecutive accept failures: %w", name, failures, err)
			}
			continue
		}

		failures = 0
		go handle(conn)
	}
}
