// Package replfront implements the REPL Front: line/block-framed command
// input, cookie-correlated backend dispatch, and response routing back to
// the originating REPL client.
package replfront

import (
	"bytes"
	"net"
	"sync"

	"github.com/candyasscoder/everfree-outpost/internal/acceptloop"
	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/consts"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

// Dispatcher is the Supervisor-facing side of the REPL Front: it writes an
// already wire-encoded client-0 frame to the backend.
type Dispatcher interface {
	SendControlFrame(payload []byte)
}

// MetricsSink receives REPL Front gauge updates. SetMetrics is optional;
// a nil sink leaves metrics uncollected.
type MetricsSink interface {
	SetLiveReplCookies(n int)
	AcceptFailure(front string)
}

// client is one connected REPL peer.
type client struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// Front owns the cookie->client correlation map, the one piece of state
// the only structure mutated by the REPL Front.
type Front struct {
	mu         sync.Mutex
	cookies    map[uint16]*client
	nextCookie uint16

	dispatcher  Dispatcher
	log         *logger.Logger
	maxFailures int
	metrics     MetricsSink
}

// New creates a Front ready to Serve a listener.
func New(cfg *config.Config, dispatcher Dispatcher, log *logger.Logger) *Front {
	return &Front{
		cookies:     make(map[uint16]*client),
		dispatcher:  dispatcher,
		log:         log,
		maxFailures: cfg.MaxAcceptFailures,
	}
}

// SetMetrics attaches a Metrics sink for the REPL Front's gauges and
// accept-failure counter.
func (f *Front) SetMetrics(m MetricsSink) { f.metrics = m }

// SetDispatcher attaches the Supervisor-facing dispatcher, for callers that
// need to break the construction cycle between the Front and its dispatcher.
func (f *Front) SetDispatcher(d Dispatcher) { f.dispatcher = d }

// Serve accepts REPL clients from ln until it closes or the accept-failure
// budget is exhausted.
func (f *Front) Serve(ln net.Listener) error {
	var onFailure func()
	if f.metrics != nil {
		onFailure = func() { f.metrics.AcceptFailure("repl") }
	}
	return acceptloop.Run(ln, f.maxFailures, f.log, "replfront", onFailure, f.handleConn)
}

func (f *Front) handleConn(conn net.Conn) {
	c := &client{conn: conn}
	defer conn.Close()

	buf := make([]byte, 0, consts.BufferSize4KB)
	chunk := make([]byte, consts.BufferSize4KB)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return
		}

		for {
			cmd, rest, ok := extractCommand(buf)
			if !ok {
				break
			}
			buf = rest
			f.dispatchCommand(c, cmd)
		}

		if len(buf) >= consts.MaxReplBuffer {
			f.log.Warn("replfront: client buffer exceeded %d bytes, closing", consts.MaxReplBuffer)
			return
		}
	}
}

// extractCommand pulls one framed command off the front of buf: either one
// line up to "\n", or, when buf starts with "{\n", a block ending at a line
// that is exactly "}". ok is false when
// buf does not yet contain a complete command. The block form's command
// body excludes the closing "}" (matching repl_client::handle_read's
// handle_command(id, first_eol + 1, prev_eol + 1) in the original
// implementation, where prev_eol + 1 lands on the brace itself).
func extractCommand(buf []byte) (cmd []byte, rest []byte, ok bool) {
	if len(buf) >= 2 && buf[0] == '{' && buf[1] == '\n' {
		for i := 1; i+2 < len(buf); i++ {
			if buf[i] == '\n' && buf[i+1] == '}' && buf[i+2] == '\n' {
				return buf[2 : i+1], buf[i+3:], true
			}
		}
		return nil, buf, false
	}

	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, buf, false
	}
	return buf[:idx], buf[idx+1:], true
}

// dispatchCommand allocates a cookie, records the correlation, and sends
// the encoded REPL_COMMAND to the backend.
func (f *Front) dispatchCommand(c *client, body []byte) {
	f.mu.Lock()
	cookie := f.nextCookie
	f.nextCookie++
	f.cookies[cookie] = c
	live := len(f.cookies)
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.SetLiveReplCookies(live)
	}

	frame, err := wire.EncodeReplCommand(cookie, body)
	if err != nil {
		f.log.Warn("replfront: %v", err)
		return
	}
	f.dispatcher.SendControlFrame(frame)
}

// HandleReplResult routes a REPL_RESULT client-0 payload back to the REPL
// client that submitted the matching cookie.
func (f *Front) HandleReplResult(payload []byte) {
	cookie, inner, err := wire.DecodeReplResult(payload)
	if err != nil {
		f.log.Warn("replfront: %v", err)
		return
	}

	f.mu.Lock()
	c, ok := f.cookies[cookie]
	if ok {
		delete(f.cookies, cookie)
	}
	live := len(f.cookies)
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.SetLiveReplCookies(live)
	}

	if !ok {
		f.log.Warn("replfront: REPL_RESULT for unknown cookie 0x%04x", cookie)
		return
	}

	c.writeMu.Lock()
	_, err = c.conn.Write(inner)
	c.writeMu.Unlock()
	if err != nil {
		f.log.Warn("replfront: write to client failed: %v", err)
	}
}

