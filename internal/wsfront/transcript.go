package wsfront

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// transcript is a per-connection hex-dump diagnostic log: when a log
// directory is configured, every WebSocket session gets its own file
// recording every frame it sends or receives.
type transcript struct {
	file *os.File
}

// openTranscript creates "<unix-ms>-<remote-addr>.log" under dir. A dir of
// "" disables the feature and openTranscript returns (nil, nil).
func openTranscript(dir, remoteAddr string) (*transcript, error) {
	if dir == "" {
		return nil, nil
	}

	name := fmt.Sprintf("%d-%s.log", time.Now().UnixMilli(), sanitizeAddr(remoteAddr))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wsfront: open transcript: %w", err)
	}
	return &transcript{file: f}, nil
}

// record appends a directional hex dump of b to the transcript.
func (t *transcript) record(direction string, b []byte) {
	if t == nil {
		return
	}
	fmt.Fprintf(t.file, "-- %s (%d bytes) --\n", direction, len(b))
	fmt.Fprint(t.file, hex.Dump(b))
}

func (t *transcript) close() {
	if t == nil {
		return
	}
	t.file.Close()
}

func sanitizeAddr(addr string) string {
	out := make([]rune, 0, len(addr))
	for _, r := range addr {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
