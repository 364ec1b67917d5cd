package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	require.NoError(t, EncodeHeader(buf, 42, 1234))

	clientID, dataLen, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), clientID)
	assert.Equal(t, uint16(1234), dataLen)
}

func TestEncodeHeaderRejectsOversizedPayload(t *testing.T) {
	buf := make([]byte, HeaderSize)
	err := EncodeHeader(buf, 1, MaxPayload+1)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	_, _, err := DecodeHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOpcodePayloadRoundTrip(t *testing.T) {
	payload := EncodeOpcodePayload(OpAddClient, 7)
	op, err := DecodeOpcode(payload)
	require.NoError(t, err)
	assert.Equal(t, OpAddClient, op)

	id, err := DecodeClientRemoved(EncodeOpcodePayload(OpClientRemoved, 7))
	require.NoError(t, err)
	assert.Equal(t, uint16(7), id)
}

func TestReplCommandEncoding(t *testing.T) {
	body := []byte("1+1")
	frame, err := EncodeReplCommand(0xC0C0, body)
	require.NoError(t, err)

	want := []byte{0x03, 0xff, 0xC0, 0xC0, 0x03, 0x00}
	want = append(want, body...)
	assert.True(t, bytes.Equal(frame, want), "got %x want %x", frame, want)
}

func TestReplResultDecoding(t *testing.T) {
	// {opcode, cookie, inner_len, inner_bytes...}
	payload := []byte{0x04, 0xff, 0xC0, 0xC0, 0x02, 0x00, '2', '\n'}
	cookie, inner, err := DecodeReplResult(payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xC0C0), cookie)
	assert.Equal(t, []byte{0x02, 0x00, '2', '\n'}, inner)
}

func TestReplResultDecodingRejectsOversizedInnerLen(t *testing.T) {
	payload := []byte{0x04, 0xff, 0x00, 0x00, 0xff, 0xff}
	_, _, err := DecodeReplResult(payload)
	assert.Error(t, err)
}

func TestScenarioS1Shutdown(t *testing.T) {
	payload := EncodeOpcodePayload(OpShutdown)
	header := make([]byte, HeaderSize)
	require.NoError(t, EncodeHeader(header, ControlClientID, len(payload)))

	frame := append(header, payload...)
	want := []byte{0x00, 0x00, 0x02, 0x00, 0x05, 0xff}
	assert.True(t, bytes.Equal(frame, want), "got %x want %x", frame, want)
}

func TestScenarioS2AddClient(t *testing.T) {
	first := EncodeOpcodePayload(OpAddClient, 1)
	second := EncodeOpcodePayload(OpAddClient, 2)

	assert.Equal(t, []byte{0x00, 0xff, 0x01, 0x00}, first)
	assert.Equal(t, []byte{0x00, 0xff, 0x02, 0x00}, second)
}
