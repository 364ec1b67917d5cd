package controlfront

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
)

type recordingDispatcher struct {
	ops []wire.Opcode
}

func (r *recordingDispatcher) HandleControlOpcode(op wire.Opcode) {
	r.ops = append(r.ops, op)
}

func newTestFront(t *testing.T) (*Front, *recordingDispatcher) {
	t.Helper()
	log, err := logger.New(logger.LevelNone, "", "test")
	require.NoError(t, err)
	disp := &recordingDispatcher{}
	return New(config.Default(), disp, log), disp
}

func TestHandleLineRecognizesAllCommands(t *testing.T) {
	f, disp := newTestFront(t)

	f.handleLine([]byte("shutdown"))
	f.handleLine([]byte("restart_server"))
	f.handleLine([]byte("restart_client"))
	f.handleLine([]byte("restart_both"))

	require.Len(t, disp.ops, 4)
	assert.Equal(t, wire.OpShutdown, disp.ops[0])
	assert.Equal(t, wire.OpRestartServer, disp.ops[1])
	assert.Equal(t, wire.OpRestartClient, disp.ops[2])
	assert.Equal(t, wire.OpRestartBoth, disp.ops[3])
}

func TestHandleLineIgnoresUnknownCommand(t *testing.T) {
	f, disp := newTestFront(t)
	f.handleLine([]byte("frobnicate"))
	assert.Empty(t, disp.ops)
}
