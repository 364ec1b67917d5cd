// Package supervisor implements the wrapper's single point of routing: it
// holds the Normal/Restarting mode, translates control opcodes into
// Backend Channel lifecycle actions, and fans backend messages out to the
// WebSocket and REPL fronts.
package supervisor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/candyasscoder/everfree-outpost/internal/backend"
	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

// Mode is the Supervisor's restart state machine.
type Mode int

const (
	// ModeNormal is the steady-state mode: backend EOF means the process
	// should exit.
	ModeNormal Mode = iota
	// ModeRestarting is entered by a RESTART_* control command: backend
	// EOF means respawn instead of exit.
	ModeRestarting
)

// WebSocketFront is the subset of wsfront.Hub the Supervisor drives.
type WebSocketFront interface {
	Send(id uint16, payload []byte)
	HandleClientRemoved(id uint16)
}

// ReplFront is the subset of replfront.Front the Supervisor drives.
type ReplFront interface {
	HandleReplResult(payload []byte)
}

// MetricsSink receives lifecycle events for the Metrics component. A nil
// sink (noopMetrics) is used when metrics are disabled.
type MetricsSink interface {
	RestartStarted()
	RestartCompleted()
	BackendSpawned()
}

// BackendChannel is the subset of *backend.Channel the Supervisor drives,
// kept as an interface so tests can substitute a fake backend without
// spawning a real child process.
type BackendChannel interface {
	Start(ctx context.Context) error
	Write(clientID uint16, payload []byte) error
	Suspend()
	Resume() error
	TakePending() []backend.PendingWrite
	Kill()
}

// Supervisor is the single owner of the Mode state machine and the
// current Backend Channel.
type Supervisor struct {
	cfg     *config.Config
	log     *logger.Logger
	ws      WebSocketFront
	repl    ReplFront
	metrics MetricsSink

	mu         sync.Mutex
	mode       Mode
	channel    BackendChannel
	graceTimer *time.Timer

	// newChannel builds a fresh BackendChannel seeded with pending, used
	// both for the initial Start and for every respawn. Overridable in
	// tests; production leaves it at the backend.New-based default.
	newChannel func(pending []backend.PendingWrite) BackendChannel

	exit func(code int)
}

// New creates a Supervisor.
func New(cfg *config.Config, ws WebSocketFront, repl ReplFront, metrics MetricsSink, log *logger.Logger) *Supervisor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	s := &Supervisor{
		cfg:     cfg,
		log:     log,
		ws:      ws,
		repl:    repl,
		metrics: metrics,
		mode:    ModeNormal,
		exit:    os.Exit,
	}
	s.newChannel = func(pending []backend.PendingWrite) BackendChannel {
		return backend.New(cfg, s, log).WithPending(pending)
	}
	return s
}

// Start spawns the first Backend Channel.
func (s *Supervisor) Start(ctx context.Context) error {
	ch := s.newChannel(nil)
	if err := ch.Start(ctx); err != nil {
		return err
	}
	s.metrics.BackendSpawned()
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) currentChannel() BackendChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// armGraceTimer force-kills ch if it hasn't exited on its own within the
// configured grace period after being asked to (via SHUTDOWN or a
// RESTART_* opcode). disarmGraceTimer cancels it once the backend's own
// exit has been observed.
func (s *Supervisor) armGraceTimer(ch BackendChannel) {
	grace := time.Duration(s.cfg.RestartGraceMillis) * time.Millisecond
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.graceTimer = time.AfterFunc(grace, func() {
		s.log.Warn("supervisor: backend did not exit within %s, forcing termination", grace)
		ch.Kill()
	})
}

func (s *Supervisor) disarmGraceTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

// HandleBackendMessage implements backend.Dispatcher: client payloads are
// forwarded to the WebSocket Front, client-0 payloads are decoded and
// routed by opcode.
func (s *Supervisor) HandleBackendMessage(clientID uint16, payload []byte) {
	if clientID != wire.ControlClientID {
		s.ws.Send(clientID, payload)
		return
	}

	op, err := wire.DecodeOpcode(payload)
	if err != nil {
		s.log.Warn("supervisor: %v", err)
		return
	}

	switch op {
	case wire.OpClientRemoved:
		id, err := wire.DecodeClientRemoved(payload)
		if err != nil {
			s.log.Warn("supervisor: %v", err)
			return
		}
		s.ws.HandleClientRemoved(id)
	case wire.OpReplResult:
		s.repl.HandleReplResult(payload)
	default:
		s.log.Warn("supervisor: unknown opcode from backend: %s", op)
	}
}

// HandleBackendShutdown implements backend.Dispatcher. It fires
// identically whether the pipe closed cleanly or with a read error; only
// the log line differs.
func (s *Supervisor) HandleBackendShutdown(err error) {
	s.disarmGraceTimer()

	if err != nil {
		s.log.Error("supervisor: backend pipe closed with error: %v", err)
	} else {
		s.log.Info("supervisor: backend pipe closed")
	}

	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	if mode == ModeRestarting {
		s.respawn()
		return
	}
	s.exit(0)
}

// respawn re-spawns the backend, carrying the old channel's pending queue
// forward, then resumes it and returns to Normal mode.
func (s *Supervisor) respawn() {
	old := s.currentChannel()
	var pending []backend.PendingWrite
	if old != nil {
		pending = old.TakePending()
	}

	next := s.newChannel(pending)
	if err := next.Start(context.Background()); err != nil {
		s.log.Error("supervisor: respawn failed: %v", err)
		s.exit(1)
		return
	}
	s.metrics.BackendSpawned()

	s.mu.Lock()
	s.channel = next
	s.mode = ModeNormal
	s.mu.Unlock()

	if err := next.Resume(); err != nil {
		s.log.Error("supervisor: resume after respawn failed: %v", err)
		s.exit(1)
		return
	}

	s.metrics.RestartCompleted()
	s.log.Info("supervisor: backend respawned")
}

// HandleControlOpcode implements controlfront.Dispatcher: the opcode is
// written to the backend, and a RESTART_* opcode also suspends the
// channel and enters Restarting mode.
func (s *Supervisor) HandleControlOpcode(op wire.Opcode) {
	ch := s.currentChannel()
	if ch == nil {
		return
	}

	if err := ch.Write(wire.ControlClientID, wire.EncodeOpcodePayload(op)); err != nil {
		s.log.Error("supervisor: write to backend failed: %v", err)
		s.exit(1)
		return
	}

	switch op {
	case wire.OpShutdown:
		s.armGraceTimer(ch)
	case wire.OpRestartServer, wire.OpRestartClient, wire.OpRestartBoth:
		s.mu.Lock()
		s.mode = ModeRestarting
		s.mu.Unlock()
		ch.Suspend()
		s.metrics.RestartStarted()
		s.armGraceTimer(ch)
	}
}

// SendControlFrame implements replfront.Dispatcher: a pre-encoded
// REPL_COMMAND frame is forwarded verbatim as a client-0 write.
func (s *Supervisor) SendControlFrame(payload []byte) {
	ch := s.currentChannel()
	if ch == nil {
		return
	}
	if err := ch.Write(wire.ControlClientID, payload); err != nil {
		s.log.Error("supervisor: write to backend failed: %v", err)
		s.exit(1)
	}
}

// NotifyAddClient implements wsfront.Dispatcher.
func (s *Supervisor) NotifyAddClient(id uint16) {
	s.writeOpcode(wire.OpAddClient, id)
}

// NotifyRemoveClient implements wsfront.Dispatcher.
func (s *Supervisor) NotifyRemoveClient(id uint16) {
	s.writeOpcode(wire.OpRemoveClient, id)
}

// Forward implements wsfront.Dispatcher: forward the client payload on
// its own id.
func (s *Supervisor) Forward(id uint16, payload []byte) {
	ch := s.currentChannel()
	if ch == nil {
		return
	}
	if err := ch.Write(id, payload); err != nil {
		s.log.Error("supervisor: write to backend failed: %v", err)
		s.exit(1)
	}
}

func (s *Supervisor) writeOpcode(op wire.Opcode, id uint16) {
	ch := s.currentChannel()
	if ch == nil {
		return
	}
	if err := ch.Write(wire.ControlClientID, wire.EncodeOpcodePayload(op, id)); err != nil {
		s.log.Error("supervisor: write to backend failed: %v", err)
		s.exit(1)
	}
}

type noopMetrics struct{}

func (noopMetrics) RestartStarted()   {}
func (noopMetrics) RestartCompleted() {}
func (noopMetrics) BackendSpawned()   {}
