// Package controlfront implements the Control Front: exact-match line
// commands on a local stream endpoint, translated into Supervisor opcodes
// on a local stream endpoint.
package controlfront

import (
	"bytes"
	"net"

	"github.com/candyasscoder/everfree-outpost/internal/acceptloop"
	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/consts"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

// Dispatcher receives the opcode a recognized command line translates to.
type Dispatcher interface {
	HandleControlOpcode(op wire.Opcode)
}

// MetricsSink receives the Control Front's accept-failure counter.
type MetricsSink interface {
	AcceptFailure(front string)
}

// Front accepts control connections and parses their line commands.
type Front struct {
	dispatcher  Dispatcher
	log         *logger.Logger
	maxFailures int
	metrics     MetricsSink
}

// New creates a Front ready to Serve a listener.
func New(cfg *config.Config, dispatcher Dispatcher, log *logger.Logger) *Front {
	return &Front{
		dispatcher:  dispatcher,
		log:         log,
		maxFailures: cfg.MaxAcceptFailures,
	}
}

// SetMetrics attaches a Metrics sink for the Control Front's
// accept-failure counter.
func (f *Front) SetMetrics(m MetricsSink) { f.metrics = m }

// SetDispatcher attaches the Supervisor-facing dispatcher, for callers that
// need to break the construction cycle between the Front and its dispatcher.
func (f *Front) SetDispatcher(d Dispatcher) { f.dispatcher = d }

// Serve accepts control clients from ln until it closes or the
// accept-failure budget is exhausted.
func (f *Front) Serve(ln net.Listener) error {
	var onFailure func()
	if f.metrics != nil {
		onFailure = func() { f.metrics.AcceptFailure("control") }
	}
	return acceptloop.Run(ln, f.maxFailures, f.log, "controlfront", onFailure, f.handleConn)
}

var commands = map[string]wire.Opcode{
	"shutdown":       wire.OpShutdown,
	"restart_server": wire.OpRestartServer,
	"restart_client": wire.OpRestartClient,
	"restart_both":   wire.OpRestartBoth,
}

func (f *Front) handleConn(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 0, consts.MaxControlLine)
	chunk := make([]byte, consts.MaxControlLine)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return
		}

		for {
			idx := bytes.IndexByte(buf, '\n')
			if idx < 0 {
				break
			}
			line := buf[:idx]
			buf = buf[idx+1:]
			f.handleLine(line)
		}

		if len(buf) > consts.MaxControlLine {
			f.log.Warn("controlfront: client buffer exceeded %d bytes, closing", consts.MaxControlLine)
			return
		}
	}
}

func (f *Front) handleLine(line []byte) {
	op, ok := commands[string(line)]
	if !ok {
		f.log.Warn("controlfront: unrecognized command %q", string(line))
		return
	}
	f.dispatcher.HandleControlOpcode(op)
}
