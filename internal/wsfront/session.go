package wsfront

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Session is one half-open WebSocket client, tracked until both its
// client-side and backend-side halves have torn down.
type Session struct {
	id    uint16
	logID string
	conn  *websocket.Conn
	send  chan []byte

	mu               sync.Mutex
	clientConnected  bool
	backendConnected bool

	transcript *transcript
	bucket     *tokenBucket
}

// dead reports whether both halves of the session have torn down.
func (s *Session) dead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.clientConnected && !s.backendConnected
}

// ID returns the session's client id.
func (s *Session) ID() uint16 { return s.id }

// LogID returns the session's log-correlation id, a UUID independent of
// the reusable 16-bit client id. It appears in the session's connect log
// line; transcript file names do not include it.
func (s *Session) LogID() string { return s.logID }
