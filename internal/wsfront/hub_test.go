package wsfront

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	added    []uint16
	removed  []uint16
	forwards []struct {
		id      uint16
		payload []byte
	}
}

func (f *fakeDispatcher) NotifyAddClient(id uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, id)
}

func (f *fakeDispatcher) NotifyRemoveClient(id uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

func (f *fakeDispatcher) Forward(id uint16, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, struct {
		id      uint16
		payload []byte
	}{id, append([]byte(nil), payload...)})
}

func newTestHub(t *testing.T) (*Hub, *fakeDispatcher, *httptest.Server) {
	t.Helper()
	log, err := logger.New(logger.LevelNone, "", "test")
	require.NoError(t, err)
	disp := &fakeDispatcher{}
	hub := New(config.Default(), disp, log)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, disp, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestTwoClientsGetSequentialIDs(t *testing.T) {
	_, disp, srv := newTestHub(t)

	c1 := dial(t, srv)
	defer c1.Close()
	c2 := dial(t, srv)
	defer c2.Close()

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.added) == 2
	}, time.Second, 10*time.Millisecond)

	disp.mu.Lock()
	defer disp.mu.Unlock()
	assert.Equal(t, uint16(1), disp.added[0])
	assert.Equal(t, uint16(2), disp.added[1])
}

func TestClientMessageForwardedWhenBackendConnected(t *testing.T) {
	_, disp, srv := newTestHub(t)
	c := dial(t, srv)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, []byte("hello")))

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.forwards) == 1
	}, time.Second, 10*time.Millisecond)

	disp.mu.Lock()
	defer disp.mu.Unlock()
	assert.Equal(t, uint16(1), disp.forwards[0].id)
	assert.Equal(t, "hello", string(disp.forwards[0].payload))
}

func TestPeerCloseNotifiesRemoveClientWhenBackendStillConnected(t *testing.T) {
	_, disp, srv := newTestHub(t)
	c := dial(t, srv)

	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.removed) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandleClientRemovedErasesDeadSession(t *testing.T) {
	hub, disp, srv := newTestHub(t)
	c := dial(t, srv)
	defer c.Close()

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.added) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.removed) == 1
	}, time.Second, 10*time.Millisecond)

	hub.HandleClientRemoved(1)

	require.Eventually(t, func() bool {
		_, ok := hub.lookup(1)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestSendDeliversFrameToClient(t *testing.T) {
	hub, disp, srv := newTestHub(t)
	c := dial(t, srv)
	defer c.Close()

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.added) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Send(1, []byte("world"))

	_, payload, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "world", string(payload))
}
