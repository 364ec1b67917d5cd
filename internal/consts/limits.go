// Package consts collects the wire and buffer limits shared across the
// wrapper's transports.
package consts

import "time"

// MaxFramePayload is the largest payload a backend-channel frame can carry,
// bounded by the wire header's u16 data_len field.
const MaxFramePayload = 1<<16 - 1

// MaxReplBuffer is the size a REPL client's inbound buffer may reach before
// it is closed as a protocol violation ("message too long").
const MaxReplBuffer = 65535

// MaxControlLine is the size cap on a Control Front client's inbound buffer.
const MaxControlLine = 128

// Buffer sizes reused for read/write scratch allocations.
const (
	BufferSize4KB  = 4 * 1024
	BufferSize64KB = 64 * 1024
)

// Timeouts for connection housekeeping. Application-data reads are left
// unbounded; these apply only to keepalive and shutdown bookkeeping.
const (
	Timeout1Second  = 1 * time.Second
	Timeout5Seconds = 5 * time.Second
	// WriteWait bounds a single WebSocket write, including keepalive pings.
	WriteWait = 10 * time.Second
	// PongWait is the read deadline reset on every pong; PingInterval must
	// stay below it so a ping always lands before the peer's deadline.
	PongWait     = 60 * time.Second
	PingInterval = (PongWait * 9) / 10
)
