package replfront

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

func TestExtractCommandSingleLine(t *testing.T) {
	cmd, rest, ok := extractCommand([]byte("1+1\nnext"))
	require.True(t, ok)
	assert.Equal(t, "1+1", string(cmd))
	assert.Equal(t, "next", string(rest))
}

func TestExtractCommandIncompleteSingleLine(t *testing.T) {
	_, _, ok := extractCommand([]byte("1+1"))
	assert.False(t, ok)
}

func TestExtractCommandBlockForm(t *testing.T) {
	input := []byte("{\nprint(1)\nprint(2)\n}\nafter")
	cmd, rest, ok := extractCommand(input)
	require.True(t, ok)
	assert.Equal(t, "print(1)\nprint(2)\n", string(cmd))
	assert.Equal(t, "after", string(rest))
}

func TestExtractCommandIncompleteBlock(t *testing.T) {
	_, _, ok := extractCommand([]byte("{\nprint(1)\n"))
	assert.False(t, ok)
}

type recordingDispatcher struct {
	frames [][]byte
}

func (r *recordingDispatcher) SendControlFrame(payload []byte) {
	r.frames = append(r.frames, append([]byte(nil), payload...))
}

func TestDispatchCommandEncodesReplCommandAndAdvancesCookie(t *testing.T) {
	log, err := logger.New(logger.LevelNone, "", "test")
	require.NoError(t, err)
	disp := &recordingDispatcher{}
	f := New(config.Default(), disp, log)

	c := &client{}
	f.dispatchCommand(c, []byte("1+1"))
	f.dispatchCommand(c, []byte("2+2"))

	require.Len(t, disp.frames, 2)

	op, err := wire.DecodeOpcode(disp.frames[0])
	require.NoError(t, err)
	assert.Equal(t, wire.OpReplCommand, op)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Same(t, c, f.cookies[0])
	assert.Same(t, c, f.cookies[1])
}

func TestReplResultRoutesToCorrectClient(t *testing.T) {
	log, err := logger.New(logger.LevelNone, "", "test")
	require.NoError(t, err)
	disp := &recordingDispatcher{}
	f := New(config.Default(), disp, log)

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	c := &client{conn: serverConn}
	f.mu.Lock()
	f.cookies[0xC0C0] = c
	f.mu.Unlock()

	payload := []byte{0x04, 0xff, 0xC0, 0xC0, 0x02, 0x00, '2', '\n'}

	done := make(chan struct{})
	go func() {
		f.HandleReplResult(payload)
		close(done)
	}()

	got := make([]byte, 4)
	n, err := clientConn.Read(got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, '2', '\n'}, got[:n])

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleReplResult did not return")
	}

	f.mu.Lock()
	_, stillPresent := f.cookies[0xC0C0]
	f.mu.Unlock()
	assert.False(t, stillPresent)
}
