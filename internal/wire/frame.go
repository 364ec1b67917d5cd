// Package wire defines the framed message format exchanged with the backend
// child process and the client-0 opcodes carried inside it.
//
// Wire form: a 4-byte little-endian header {client_id: u16, data_len: u16}
// followed by exactly data_len payload bytes. client_id == 0 is reserved for
// control/REPL traffic between the wrapper and the backend.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length in bytes of a frame header.
const HeaderSize = 4

// MaxPayload is the largest payload a frame can carry, bounded by the u16
// data_len field.
const MaxPayload = 1<<16 - 1

// ControlClientID is the reserved client id for control/REPL opcodes.
const ControlClientID = 0

// Opcode identifies the meaning of a client-0 payload's first two bytes.
type Opcode uint16

// Recognized opcodes, carried over verbatim from the backend protocol.
const (
	OpAddClient     Opcode = 0xff00
	OpRemoveClient  Opcode = 0xff01
	OpClientRemoved Opcode = 0xff02
	OpReplCommand   Opcode = 0xff03
	OpReplResult    Opcode = 0xff04
	OpShutdown      Opcode = 0xff05
	OpRestartServer Opcode = 0xff06
	OpRestartClient Opcode = 0xff07
	OpRestartBoth   Opcode = 0xff08

	// OpChatUpdate is carried over from the original wrapper prototype for
	// wire compatibility with the spam-backoff warning frame it sends
	// directly to WebSocket clients (never through the backend pipe).
	OpChatUpdate Opcode = 0x800b
)

func (o Opcode) String() string {
	switch o {
	case OpAddClient:
		return "ADD_CLIENT"
	case OpRemoveClient:
		return "REMOVE_CLIENT"
	case OpClientRemoved:
		return "CLIENT_REMOVED"
	case OpReplCommand:
		return "REPL_COMMAND"
	case OpReplResult:
		return "REPL_RESULT"
	case OpShutdown:
		return "SHUTDOWN"
	case OpRestartServer:
		return "RESTART_SERVER"
	case OpRestartClient:
		return "RESTART_CLIENT"
	case OpRestartBoth:
		return "RESTART_BOTH"
	case OpChatUpdate:
		return "CHAT_UPDATE"
	default:
		return fmt.Sprintf("Opcode(0x%04x)", uint16(o))
	}
}

// Frame is one (client_id, payload) unit exchanged with the backend.
type Frame struct {
	ClientID uint16
	Payload  []byte
}

// EncodeHeader writes the 4-byte little-endian header for a payload of the
// given length into dst, which must be at least HeaderSize bytes.
func EncodeHeader(dst []byte, clientID uint16, payloadLen int) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("wire: header buffer too small: %d bytes", len(dst))
	}
	if payloadLen < 0 || payloadLen > MaxPayload {
		return fmt.Errorf("wire: payload length %d exceeds maximum %d", payloadLen, MaxPayload)
	}
	binary.LittleEndian.PutUint16(dst[0:2], clientID)
	binary.LittleEndian.PutUint16(dst[2:4], uint16(payloadLen))
	return nil
}

// DecodeHeader parses a 4-byte little-endian header.
func DecodeHeader(src []byte) (clientID uint16, dataLen uint16, err error) {
	if len(src) < HeaderSize {
		return 0, 0, fmt.Errorf("wire: header too short: %d bytes", len(src))
	}
	clientID = binary.LittleEndian.Uint16(src[0:2])
	dataLen = binary.LittleEndian.Uint16(src[2:4])
	return clientID, dataLen, nil
}

// EncodeOpcodePayload builds a client-0 payload consisting of just an
// opcode, used for SHUTDOWN/RESTART_* and ADD_CLIENT/REMOVE_CLIENT/
// CLIENT_REMOVED (the latter three append the affected client id).
func EncodeOpcodePayload(op Opcode, extra ...uint16) []byte {
	buf := make([]byte, 2+2*len(extra))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(op))
	for i, v := range extra {
		off := 2 + 2*i
		binary.LittleEndian.PutUint16(buf[off:off+2], v)
	}
	return buf
}

// DecodeOpcode reads the opcode from the front of a client-0 payload.
func DecodeOpcode(payload []byte) (Opcode, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("wire: payload too short for opcode: %d bytes", len(payload))
	}
	return Opcode(binary.LittleEndian.Uint16(payload[0:2])), nil
}

// EncodeReplCommand builds the 6-byte-header REPL_COMMAND frame body:
// {REPL_COMMAND: u16, cookie: u16, body_len: u16} followed by body.
func EncodeReplCommand(cookie uint16, body []byte) ([]byte, error) {
	if len(body) > MaxPayload-6 {
		return nil, fmt.Errorf("wire: repl command body too large: %d bytes", len(body))
	}
	buf := make([]byte, 6+len(body))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(OpReplCommand))
	binary.LittleEndian.PutUint16(buf[2:4], cookie)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(body)))
	copy(buf[6:], body)
	return buf, nil
}

// DecodeReplResult parses a REPL_RESULT client-0 payload:
// {opcode: u16, cookie: u16, inner_len: u16, inner_bytes...}.
// The returned inner slice aliases payload and includes the inner_len
// prefix, ready to be written straight to the REPL client per §4.4.
func DecodeReplResult(payload []byte) (cookie uint16, inner []byte, err error) {
	if len(payload) < 6 {
		return 0, nil, fmt.Errorf("wire: repl result too short: %d bytes", len(payload))
	}
	cookie = binary.LittleEndian.Uint16(payload[2:4])
	innerLen := binary.LittleEndian.Uint16(payload[4:6])
	remaining := len(payload) - 6
	if int(innerLen) > remaining {
		return 0, nil, fmt.Errorf("wire: repl result inner_len %d exceeds remaining %d bytes", innerLen, remaining)
	}
	return cookie, payload[4 : 6+int(innerLen)], nil
}

// DecodeClientRemoved parses a CLIENT_REMOVED client-0 payload of the
// required 4-byte shape: {opcode: u16, client_id: u16}.
func DecodeClientRemoved(payload []byte) (clientID uint16, err error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("wire: CLIENT_REMOVED payload must be 4 bytes, got %d", len(payload))
	}
	return binary.LittleEndian.Uint16(payload[2:4]), nil
}
