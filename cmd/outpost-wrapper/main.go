// Command outpost-wrapper is the front-end multiplexer: it terminates
// binary WebSocket, Control, and REPL connections and fans them all
// through one framed pipe to a supervised backend child process.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/candyasscoder/everfree-outpost/internal/config"
	"github.com/candyasscoder/everfree-outpost/internal/controlfront"
	"github.com/candyasscoder/everfree-outpost/internal/logger"
	"github.com/candyasscoder/everfree-outpost/internal/metrics"
	"github.com/candyasscoder/everfree-outpost/internal/replfront"
	"github.com/candyasscoder/everfree-outpost/internal/sigwatch"
	"github.com/candyasscoder/everfree-outpost/internal/supervisor"
	"github.com/candyasscoder/everfree-outpost/internal/wire"
	"github.com/candyasscoder/everfree-outpost/internal/wsfront"
)

func main() {
	app := &cli.App{
		Name:  "outpost-wrapper",
		Usage: "WebSocket/Control/REPL multiplexer in front of a supervised backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a JSON config file merged under these flags"},
			&cli.StringFlag{Name: "backend", Usage: "path to the backend executable"},
			&cli.StringFlag{Name: "ws-addr", Usage: "address the WebSocket Front listens on", Value: "0.0.0.0:8888"},
			&cli.StringFlag{Name: "control-socket", Usage: "Control Front unix socket path (POSIX) or tcp addr (Windows)"},
			&cli.StringFlag{Name: "repl-socket", Usage: "REPL Front unix socket path (POSIX) or tcp addr (Windows)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "loopback address for GET /metrics, empty disables it"},
			&cli.StringFlag{Name: "log-dir", Usage: "directory for per-session transcripts and a wrapper.log tee"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error, or none", Value: "info"},
			&cli.BoolFlag{Name: "input-backoff", Usage: "enable the token-bucket WebSocket input rate limiter"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level=debug"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cfg, c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureLogDir(); err != nil {
		return fmt.Errorf("outpost-wrapper: %w", err)
	}

	log, err := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.WrapperLogPath(), "outpost-wrapper")
	if err != nil {
		return fmt.Errorf("outpost-wrapper: %w", err)
	}
	defer log.Close()

	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := wsfront.New(cfg, nil, log)
	repl := replfront.New(cfg, nil, log)
	control := controlfront.New(cfg, nil, log)
	ws.SetMetrics(m)
	repl.SetMetrics(m)
	control.SetMetrics(m)

	sup := supervisor.New(cfg, ws, repl, m, log)
	wireDispatchers(ws, repl, control, sup)

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("outpost-wrapper: starting backend: %w", err)
	}

	errCh := make(chan error, 4)

	wsLn, err := net.Listen("tcp", cfg.WebSocketAddr)
	if err != nil {
		return fmt.Errorf("outpost-wrapper: %w", err)
	}
	go func() {
		srv := &http.Server{Addr: cfg.WebSocketAddr, Handler: ws}
		errCh <- srv.Serve(wsLn)
	}()

	controlLn, err := listenSocket(cfg.Control)
	if err != nil {
		return fmt.Errorf("outpost-wrapper: %w", err)
	}
	go func() { errCh <- control.Serve(controlLn) }()

	replLn, err := listenSocket(cfg.Repl)
	if err != nil {
		return fmt.Errorf("outpost-wrapper: %w", err)
	}
	go func() { errCh <- repl.Serve(replLn) }()

	if cfg.MetricsAddr != "" {
		metricsLn, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("outpost-wrapper: %w", err)
		}
		go func() { errCh <- m.Serve(ctx, metricsLn, log) }()
	}

	go sigwatch.Watch(ctx, log, func() {
		sup.HandleControlOpcode(wire.OpShutdown)
	}, func() {
		sigwatch.ReapAll(log)
	})

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
		return nil
	}
}

// wireDispatchers closes the circular dependency between the three fronts
// and the Supervisor: all four are constructed first, then pointed at each
// other, since each front's Dispatcher is the Supervisor and the
// Supervisor's WebSocketFront/ReplFront are the fronts themselves.
func wireDispatchers(ws *wsfront.Hub, repl *replfront.Front, control *controlfront.Front, sup *supervisor.Supervisor) {
	ws.SetDispatcher(sup)
	repl.SetDispatcher(sup)
	control.SetDispatcher(sup)
}

func applyFlags(cfg *config.Config, c *cli.Context) {
	if v := c.String("backend"); v != "" {
		cfg.BackendExe = v
	}
	if v := c.String("ws-addr"); v != "" && c.IsSet("ws-addr") {
		cfg.WebSocketAddr = v
	}
	if v := c.String("control-socket"); v != "" {
		cfg.Control = socketFromFlag(v)
	}
	if v := c.String("repl-socket"); v != "" {
		cfg.Repl = socketFromFlag(v)
	}
	if v := c.String("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := c.String("log-dir"); v != "" {
		cfg.LogDir = v
	}
	if v := c.String("log-level"); v != "" && c.IsSet("log-level") {
		cfg.LogLevel = v
	}
	if c.Bool("debug") {
		cfg.LogLevel = "debug"
	}
	if c.Bool("input-backoff") {
		cfg.InputBackoff = true
	}
}

// socketFromFlag accepts either a filesystem path or a host:port address
// and fills in whichever Socket field matches, so the same flag works on
// POSIX (unix path) and Windows (tcp addr) builds.
func socketFromFlag(v string) config.Socket {
	if _, _, err := net.SplitHostPort(v); err == nil {
		return config.Socket{TCPAddr: v}
	}
	return config.Socket{UnixPath: v}
}

func listenSocket(s config.Socket) (net.Listener, error) {
	network, address := s.Network()
	if network == "unix" {
		_ = os.Remove(address)
	}
	return net.Listen(network, address)
}
