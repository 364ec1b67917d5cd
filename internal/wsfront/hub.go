// Package wsfront implements the WebSocket Front: it accepts binary
// WebSocket clients, allocates 16-bit client ids, and mediates the
// half-open session teardown protocol shared with the Supervisor and
// Backend Channel.
package wsfront

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/consts"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

// Dispatcher is the Supervisor-facing side of the WebSocket Front: it
// turns session lifecycle and inbound-message events into backend opcodes
// and framed writes.
type Dispatcher interface {
	// NotifyAddClient announces a newly opened session to the backend.
	NotifyAddClient(id uint16)
	// NotifyRemoveClient asks the backend to tear down a session whose
	// client side has closed.
	NotifyRemoveClient(id uint16)
	// Forward delivers an inbound client message to the backend.
	Forward(id uint16, payload []byte)
}

// Hub owns the client-id table, the only structure mutated by the
// WebSocket Front. A plain mutex guards it; the table is a single leaf
// structure with no nested locking.
type Hub struct {
	mu     sync.Mutex
	byID   map[uint16]*Session
	nextID uint16

	dispatcher Dispatcher
	log        *logger.Logger
	cfg        *config.Config
	upgrader   websocket.Upgrader
	metrics    MetricsSink
}

// MetricsSink receives the WebSocket Front's connected-client gauge.
// SetMetrics is optional; a nil sink leaves metrics uncollected.
type MetricsSink interface {
	SetConnectedClients(n int)
}

// SetMetrics attaches a Metrics sink updated on every register/erase.
func (h *Hub) SetMetrics(m MetricsSink) { h.metrics = m }

// SetDispatcher attaches the Supervisor-facing dispatcher, for callers that
// need to break the construction cycle between the Hub and its dispatcher.
func (h *Hub) SetDispatcher(d Dispatcher) { h.dispatcher = d }

// New creates a Hub ready to serve upgraded WebSocket connections.
func New(cfg *config.Config, dispatcher Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		byID:       make(map[uint16]*Session),
		nextID:     1,
		dispatcher: dispatcher,
		log:        log,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its pumps until the client
// side of the session closes; the session itself stays registered until
// the backend side has closed too.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("wsfront: upgrade failed: %v", err)
		return
	}

	sess := h.register(conn)
	h.updateConnectedGauge()
	h.log.Info("wsfront: client %d (%s) connected from %s", sess.id, sess.logID, r.RemoteAddr)

	if h.cfg.LogDir != "" {
		t, err := openTranscript(h.cfg.LogDir, r.RemoteAddr)
		if err != nil {
			h.log.Warn("wsfront: %v", err)
		} else {
			sess.transcript = t
		}
	}
	if h.cfg.InputBackoff {
		sess.bucket = newTokenBucket()
	}

	h.dispatcher.NotifyAddClient(sess.id)

	go h.writePump(sess)
	h.readPump(sess)
}

// register allocates the next free non-zero id and inserts the session
// under it in one locked step.
func (h *Hub) register(conn *websocket.Conn) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	for {
		if id == 0 {
			id++
			continue
		}
		if _, used := h.byID[id]; !used {
			break
		}
		id++
	}
	h.nextID = id + 1

	sess := &Session{
		id:               id,
		logID:            uuid.New().String(),
		conn:             conn,
		send:             make(chan []byte, 64),
		clientConnected:  true,
		backendConnected: true,
	}
	h.byID[id] = sess
	return sess
}

// Len reports the number of live sessions, for the Metrics gauge.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byID)
}

func (h *Hub) updateConnectedGauge() {
	if h.metrics == nil {
		return
	}
	h.metrics.SetConnectedClients(h.Len())
}

func (h *Hub) lookup(id uint16) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.byID[id]
	return sess, ok
}

func (h *Hub) erase(id uint16) {
	h.mu.Lock()
	sess, ok := h.byID[id]
	if ok {
		delete(h.byID, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	close(sess.send)
	sess.transcript.close()
	h.updateConnectedGauge()
	h.log.Info("wsfront: client %d destroyed", id)
}

// readPump drives one session's inbound side until the connection errors
// or closes, then runs the peer-initiated-close handler. The read deadline
// is reset by every pong, so an unresponsive peer is dropped within
// consts.PongWait of its last pong; application data itself carries no
// deadline.
func (h *Hub) readPump(sess *Session) {
	_ = sess.conn.SetReadDeadline(time.Now().Add(consts.PongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(consts.PongWait))
	})

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			h.onClientClose(sess)
			return
		}

		sess.transcript.record("client->wrapper", payload)

		sess.mu.Lock()
		backendConnected := sess.backendConnected
		sess.mu.Unlock()

		if !backendConnected {
			continue
		}

		if sess.bucket != nil && !sess.bucket.allow() {
			if sess.bucket.shouldWarn() {
				h.sendDirect(sess, wire.EncodeOpcodePayload(wire.OpChatUpdate))
			}
			continue
		}

		h.dispatcher.Forward(sess.id, payload)
	}
}

// writePump is the single goroutine allowed to call conn.WriteMessage for
// this session, draining Send and sendDirect's shared channel and sending
// a keepalive ping every consts.PingInterval so a dead peer is noticed
// even when nothing else is being written.
func (h *Hub) writePump(sess *Session) {
	ticker := time.NewTicker(consts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sess.send:
			if !ok {
				_ = sess.conn.SetWriteDeadline(time.Now().Add(consts.WriteWait))
				_ = sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			_ = sess.conn.SetWriteDeadline(time.Now().Add(consts.WriteWait))
			if err := sess.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				h.log.Warn("wsfront: client %d write error: %v", sess.id, err)
				continue
			}
			sess.transcript.record("wrapper->client", payload)

		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(consts.WriteWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Warn("wsfront: client %d ping failed: %v", sess.id, err)
				return
			}
		}
	}
}

// onClientClose handles the client side of a session closing: the peer
// hung up, or a read/write error tore down the connection.
func (h *Hub) onClientClose(sess *Session) {
	sess.mu.Lock()
	sess.clientConnected = false
	dead := !sess.clientConnected && !sess.backendConnected
	sess.mu.Unlock()

	if dead {
		h.erase(sess.id)
		return
	}
	h.dispatcher.NotifyRemoveClient(sess.id)
}

// HandleClientRemoved handles the backend side of a session closing,
// called by the Supervisor on a CLIENT_REMOVED opcode.
func (h *Hub) HandleClientRemoved(id uint16) {
	sess, ok := h.lookup(id)
	if !ok {
		h.log.Warn("wsfront: CLIENT_REMOVED for unknown client %d", id)
		return
	}

	sess.mu.Lock()
	sess.backendConnected = false
	dead := !sess.clientConnected && !sess.backendConnected
	sess.mu.Unlock()

	if dead {
		h.erase(id)
		return
	}
	sess.conn.Close()
}

// Send delivers a single binary frame to the client if it is still
// connected, otherwise it is a silent no-op.
func (h *Hub) Send(id uint16, payload []byte) {
	sess, ok := h.lookup(id)
	if !ok {
		return
	}
	h.sendDirect(sess, payload)
}

func (h *Hub) sendDirect(sess *Session, payload []byte) {
	sess.mu.Lock()
	clientConnected := sess.clientConnected
	sess.mu.Unlock()
	if !clientConnected {
		return
	}

	select {
	case sess.send <- payload:
	default:
		h.log.Warn("wsfront: client %d send buffer full, dropping frame", sess.id)
	}
}
