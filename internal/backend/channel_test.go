package backend

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

// nopWriteCloser adapts a bytes.Buffer to io.WriteCloser for testing writes
// without spawning a real child process.
type nopWriteCloser struct {
	mu sync.Mutex
	buf bytes.Buffer
}

func (w *nopWriteCloser) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *nopWriteCloser) Close() error { return nil }

func (w *nopWriteCloser) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []wire.Frame
	shutdown chan error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{shutdown: make(chan error, 1)}
}

func (d *recordingDispatcher) HandleBackendMessage(clientID uint16, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, wire.Frame{ClientID: clientID, Payload: payload})
}

func (d *recordingDispatcher) HandleBackendShutdown(err error) {
	d.shutdown <- err
}

func (d *recordingDispatcher) snapshot() []wire.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wire.Frame(nil), d.messages...)
}

func newTestChannel(t *testing.T, stdout io.ReadCloser) (*Channel, *nopWriteCloser, *recordingDispatcher) {
	t.Helper()
	disp := newRecordingDispatcher()
	log, err := logger.New(logger.LevelNone, "", "test")
	require.NoError(t, err)
	ch := New(nil, disp, log)
	stdin := &nopWriteCloser{}
	ch.stdin = stdin
	ch.stdout = stdout
	ch.state = StateRunning
	return ch, stdin, disp
}

func TestWriteEncodesFrameImmediatelyWhenRunning(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ch, stdin, _ := newTestChannel(t, pr)

	require.NoError(t, ch.Write(3, []byte("hello")))

	clientID, dataLen, err := wire.DecodeHeader(stdin.Bytes()[:wire.HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint16(3), clientID)
	assert.Equal(t, uint16(5), dataLen)
	assert.Equal(t, []byte("hello"), stdin.Bytes()[wire.HeaderSize:])
}

func TestSuspendQueuesWritesAndResumeDrainsInOrder(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ch, stdin, _ := newTestChannel(t, pr)

	ch.Suspend()
	require.NoError(t, ch.Write(1, []byte("a")))
	require.NoError(t, ch.Write(2, []byte("b")))

	assert.Empty(t, stdin.Bytes(), "writes must not reach stdin while suspended")

	require.NoError(t, ch.Resume())

	got := stdin.Bytes()
	var frames []wire.Frame
	for len(got) > 0 {
		clientID, dataLen, err := wire.DecodeHeader(got[:wire.HeaderSize])
		require.NoError(t, err)
		got = got[wire.HeaderSize:]
		frames = append(frames, wire.Frame{ClientID: clientID, Payload: got[:dataLen]})
		got = got[dataLen:]
	}

	require.Len(t, frames, 2)
	assert.Equal(t, uint16(1), frames[0].ClientID)
	assert.Equal(t, "a", string(frames[0].Payload))
	assert.Equal(t, uint16(2), frames[1].ClientID)
	assert.Equal(t, "b", string(frames[1].Payload))
}

func TestReadLoopDispatchesFramesThenCleanEOF(t *testing.T) {
	pr, pw := io.Pipe()
	ch, _, disp := newTestChannel(t, pr)

	go ch.readLoop()

	header := make([]byte, wire.HeaderSize)
	require.NoError(t, wire.EncodeHeader(header, 9, 2))
	_, err := pw.Write(append(header, []byte("hi")...))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	select {
	case err := <-disp.shutdown:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for shutdown dispatch")
	}

	msgs := disp.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, uint16(9), msgs[0].ClientID)
	assert.Equal(t, "hi", string(msgs[0].Payload))

	assert.Equal(t, StateIdle, ch.State())
}

func TestReadLoopReportsReadErrorAsShutdown(t *testing.T) {
	pr, pw := io.Pipe()
	ch, _, disp := newTestChannel(t, pr)

	go ch.readLoop()

	require.NoError(t, pw.CloseWithError(io.ErrClosedPipe))

	select {
	case err := <-disp.shutdown:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for shutdown dispatch")
	}
}
