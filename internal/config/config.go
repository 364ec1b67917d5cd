// Package config loads the wrapper's runtime configuration: the backend
// executable to spawn, the transports' listen addresses, and diagnostic
// settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Socket holds a POSIX Unix-domain-socket path or, on platforms without
// AF_UNIX support, a loopback TCP address.
type Socket struct {
	// UnixPath is the socket file to bind on POSIX systems.
	UnixPath string `json:"unix_path,omitempty"`
	// TCPAddr is the loopback address to bind on Windows.
	TCPAddr string `json:"tcp_addr,omitempty"`
}

// Network returns "unix" or "tcp" and the address to pass to net.Listen,
// chosen by platform the way the original wrapper picks between
// tornado.netutil.bind_unix_socket and bind_sockets.
func (s Socket) Network() (network, address string) {
	if runtime.GOOS == "windows" {
		return "tcp", s.TCPAddr
	}
	return "unix", s.UnixPath
}

// Config is the wrapper's full runtime configuration.
type Config struct {
	// BackendExe is the path to the backend child executable.
	BackendExe string `json:"backend_exe"`
	// BackendArgs are extra arguments appended after BackendExe, matching
	// the original wrapper's `[exe, ROOT_DIR]` invocation.
	BackendArgs []string `json:"backend_args,omitempty"`

	// WebSocketAddr is the TCP address the WebSocket Front listens on.
	WebSocketAddr string `json:"websocket_addr"`

	// Control is the Control Front's local stream endpoint.
	Control Socket `json:"control"`
	// Repl is the REPL Front's local stream endpoint.
	Repl Socket `json:"repl"`

	// MetricsAddr is the loopback address the Prometheus /metrics endpoint
	// listens on. Empty disables metrics.
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// LogLevel is one of debug/info/warn/error/none.
	LogLevel string `json:"log_level"`
	// LogDir, if set, enables a per-connection diagnostic hex-dump
	// transcript file for every WebSocket session, plus a wrapper.log tee.
	LogDir string `json:"log_dir,omitempty"`

	// RestartGraceMillis bounds how long the Supervisor waits for a clean
	// backend exit after asking it to shut down, in milliseconds, before
	// forcing termination.
	RestartGraceMillis int `json:"restart_grace_millis"`

	// InputBackoff enables a token-bucket rate limit on each WebSocket
	// client's inbound messages. Off by default.
	InputBackoff bool `json:"input_backoff"`

	// MaxAcceptFailures is the number of consecutive accept errors on a
	// Control or REPL front before its Serve returns an error, which ends the
	// wrapper.
	MaxAcceptFailures int `json:"max_accept_failures"`
}

// Default returns a Config with the wrapper's baseline defaults.
func Default() *Config {
	return &Config{
		BackendExe:         "./backend",
		WebSocketAddr:      "0.0.0.0:8888",
		Control:            Socket{UnixPath: "./control", TCPAddr: "127.0.0.1:9998"},
		Repl:               Socket{UnixPath: "./repl", TCPAddr: "127.0.0.1:9999"},
		MetricsAddr:        "",
		LogLevel:           "info",
		LogDir:             "",
		RestartGraceMillis: 5000,
		InputBackoff:       false,
		MaxAcceptFailures:  5,
	}
}

// Load reads a JSON config file over Default(), leaving fields the file
// doesn't set at their defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the wrapper cannot start with.
func (c *Config) Validate() error {
	if c.BackendExe == "" {
		return fmt.Errorf("config: backend_exe must not be empty")
	}
	if c.WebSocketAddr == "" {
		return fmt.Errorf("config: websocket_addr must not be empty")
	}
	if c.MaxAcceptFailures <= 0 {
		c.MaxAcceptFailures = 5
	}
	if c.RestartGraceMillis <= 0 {
		c.RestartGraceMillis = 5000
	}
	return nil
}

// EnsureLogDir creates the configured log directory, if any.
func (c *Config) EnsureLogDir() error {
	if c.LogDir == "" {
		return nil
	}
	return os.MkdirAll(c.LogDir, 0755)
}

// WrapperLogPath is the tee target for the process-wide diagnostic log.
func (c *Config) WrapperLogPath() string {
	if c.LogDir == "" {
		return ""
	}
	return filepath.Join(c.LogDir, "wrapper.log")
}
