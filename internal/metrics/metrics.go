// Package metrics exposes the wrapper's operational counters over
// Prometheus, following the custom-registry pattern used elsewhere in the
// retrieval pack's tunnel-proxy metrics package, adapted to this wrapper's
// own leveled logger instead of slog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "outpost_wrapper"

// Registry holds every Prometheus metric the wrapper exposes, backed by a
// private registry rather than the global default, so tests can spin up
// independent instances.
type Registry struct {
	Registry *prometheus.Registry

	connectedClients  prometheus.Gauge
	liveReplCookies   prometheus.Gauge
	acceptFailures    *prometheus.CounterVec
	restartsStarted   prometheus.Counter
	restartsCompleted prometheus.Counter
	backendSpawns     prometheus.Counter
}

// New creates a Registry with its metrics registered and ready to serve.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Registry{
		Registry: reg,

		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_websocket_clients",
			Help:      "Number of live WebSocket sessions tracked by the WebSocket Front.",
		}),

		liveReplCookies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_repl_cookies",
			Help:      "Number of REPL commands awaiting a correlated response.",
		}),

		acceptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_failures_total",
			Help:      "Accept failures, by front.",
		}, []string{"front"}),

		restartsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_started_total",
			Help:      "RESTART_* control commands that put the Supervisor into Restarting mode.",
		}),

		restartsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_completed_total",
			Help:      "Backend respawns that completed and resumed the pending queue.",
		}),

		backendSpawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_spawns_total",
			Help:      "Total number of times a backend child process was spawned.",
		}),
	}

	reg.MustRegister(
		m.connectedClients,
		m.liveReplCookies,
		m.acceptFailures,
		m.restartsStarted,
		m.restartsCompleted,
		m.backendSpawns,
	)

	return m
}

// SetConnectedClients updates the live WebSocket session gauge.
func (m *Registry) SetConnectedClients(n int) { m.connectedClients.Set(float64(n)) }

// SetLiveReplCookies updates the outstanding-REPL-correlation gauge.
func (m *Registry) SetLiveReplCookies(n int) { m.liveReplCookies.Set(float64(n)) }

// AcceptFailure records one accept-loop failure for the named front.
func (m *Registry) AcceptFailure(front string) { m.acceptFailures.WithLabelValues(front).Inc() }

// RestartStarted implements supervisor.MetricsSink.
func (m *Registry) RestartStarted() { m.restartsStarted.Inc() }

// RestartCompleted implements supervisor.MetricsSink.
func (m *Registry) RestartCompleted() { m.restartsCompleted.Inc() }

// BackendSpawned records a backend child process spawn.
func (m *Registry) BackendSpawned() { m.backendSpawns.Inc() }
