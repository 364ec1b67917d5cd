// Package backend owns the framed pipe to the supervised backend child
// process: spawning it, pumping the read loop, and serializing writes with
// a suspend/resume queue for zero-loss hot restarts.
package backend

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/procgroup"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

// State is the Backend Channel's lifecycle state.
type State int

const (
	// StateIdle is the state before Start and after a backend exit.
	StateIdle State = iota
	// StateRunning pumps reads and forwards writes immediately.
	StateRunning
	// StateSuspended defers writes to the pending queue; reads continue.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Dispatcher receives frames read from the backend and is notified when the
// backend pipe closes. Implemented by the Supervisor; kept as an interface
// here so this package never imports its caller.
type Dispatcher interface {
	HandleBackendMessage(clientID uint16, payload []byte)
	HandleBackendShutdown(err error)
}

// PendingWrite is one entry in the suspend queue, exposed so the
// Supervisor can carry it forward across a restart's Channel swap.
type PendingWrite struct {
	ClientID uint16
	Payload  []byte
}

// Channel is the framed bidirectional transport to one backend child
// instance. It is not reused across a restart: the Supervisor replaces it
// with a new Channel, carrying the pending queue forward.
type Channel struct {
	cfg        *config.Config
	dispatcher Dispatcher
	log        *logger.Logger

	mu      sync.Mutex
	state   State
	pending []PendingWrite

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	stopOnce sync.Once
}

// New creates a Channel in the Idle state, ready for Start.
func New(cfg *config.Config, dispatcher Dispatcher, log *logger.Logger) *Channel {
	return &Channel{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        log,
		state:      StateIdle,
	}
}

// WithPending seeds the new Channel's suspend queue from a predecessor's
// leftover pending writes, so a restart loses nothing.
func (c *Channel) WithPending(pending []PendingWrite) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = pending
	return c
}

// TakePending drains and returns this Channel's pending queue, for handing
// to the replacement Channel across a restart.
func (c *Channel) TakePending() []PendingWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start spawns the backend child and begins the read loop. The Channel
// transitions Idle -> Running.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("backend: Start called in state %s", c.state)
	}
	c.mu.Unlock()

	cmd := exec.CommandContext(ctx, c.cfg.BackendExe, c.cfg.BackendArgs...)
	procgroup.Configure(cmd)
	cmd.Stderr = &stderrWriter{log: c.log}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("backend: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("backend: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("backend: spawn %s: %w", c.cfg.BackendExe, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.stdout = stdout
	c.state = StateRunning
	c.mu.Unlock()

	c.log.Info("backend: spawned pid=%d exe=%s", cmd.Process.Pid, c.cfg.BackendExe)

	go c.readLoop()

	return nil
}

// readLoop reads {client_id, data_len}+payload frames until EOF or error,
// dispatching each to the Supervisor, then reports shutdown.
func (c *Channel) readLoop() {
	header := make([]byte, wire.HeaderSize)

	for {
		if _, err := io.ReadFull(c.stdout, header); err != nil {
			c.onReadDone(err)
			return
		}

		clientID, dataLen, err := wire.DecodeHeader(header)
		if err != nil {
			c.onReadDone(err)
			return
		}

		var payload []byte
		if dataLen > 0 {
			payload = make([]byte, dataLen)
			if _, err := io.ReadFull(c.stdout, payload); err != nil {
				c.onReadDone(err)
				return
			}
		}

		c.dispatcher.HandleBackendMessage(clientID, payload)
	}
}

func (c *Channel) onReadDone(err error) {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	if err == io.EOF {
		c.log.Info("backend: stdout closed (EOF)")
		c.dispatcher.HandleBackendShutdown(nil)
	} else {
		c.log.Error("backend: read error: %v", err)
		c.dispatcher.HandleBackendShutdown(err)
	}
}

// Write sends (clientID, payload) to the backend, or queues it if the
// channel is Suspended.
func (c *Channel) Write(clientID uint16, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(clientID, payload)
}

// writeLocked performs the actual scatter-gather write: a freshly allocated
// header followed by the payload, issued back to back while holding the
// same lock that guards the pending queue so a Resume drain can never
// interleave with a fresh Write out of order.
func (c *Channel) writeLocked(clientID uint16, payload []byte) error {
	if c.state == StateSuspended {
		c.pending = append(c.pending, PendingWrite{ClientID: clientID, Payload: payload})
		return nil
	}

	header := make([]byte, wire.HeaderSize)
	if err := wire.EncodeHeader(header, clientID, len(payload)); err != nil {
		return err
	}

	if _, err := c.stdin.Write(header); err != nil {
		return fmt.Errorf("backend: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := c.stdin.Write(payload); err != nil {
			return fmt.Errorf("backend: write payload: %w", err)
		}
	}
	return nil
}

// Suspend deflects subsequent writes to the pending queue.
func (c *Channel) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateSuspended
	c.log.Info("backend: suspended (%d pending)", len(c.pending))
}

// Resume drains the pending queue in FIFO order via writeLocked, then
// accepts writes immediately again.
func (c *Channel) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateRunning
	pending := c.pending
	c.pending = nil

	c.log.Info("backend: resuming, draining %d pending writes", len(pending))

	for _, w := range pending {
		if err := c.writeLocked(w.ClientID, w.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Kill forcibly terminates the backend's whole process group. Used when the
// backend has not exited within the grace period after SHUTDOWN or RESTART_*.
func (c *Channel) Kill() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cmd := c.cmd
		c.mu.Unlock()

		if cmd == nil || cmd.Process == nil {
			return
		}

		if pgid := procgroup.ID(cmd); pgid > 0 {
			if err := procgroup.Signal(pgid, "SIGKILL", c.log); err == nil {
				return
			}
		}
		_ = cmd.Process.Kill()
	})
}

// Wait blocks until the spawned child has exited and returns its error, if
// any. Safe to call only after Start has returned successfully.
func (c *Channel) Wait() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("backend: Wait called before Start")
	}
	return cmd.Wait()
}

// stderrWriter routes the backend child's stderr to the wrapper's logger
// instead of discarding it, following internal/actor's discipline of
// keeping subprocess diagnostics visible to the operator.
type stderrWriter struct {
	log *logger.Logger
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	w.log.Warn("backend stderr: %s", string(p))
	return len(p), nil
}
