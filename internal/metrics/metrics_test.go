package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetConnectedClientsUpdatesGauge(t *testing.T) {
	m := New()

	m.SetConnectedClients(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.connectedClients))
}

func TestAcceptFailureIncrementsPerFrontLabel(t *testing.T) {
	m := New()

	m.AcceptFailure("control")
	m.AcceptFailure("control")
	m.AcceptFailure("repl")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.acceptFailures.WithLabelValues("control")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.acceptFailures.WithLabelValues("repl")))
}

func TestRestartAndSpawnCountersIncrement(t *testing.T) {
	m := New()

	m.RestartStarted()
	m.RestartCompleted()
	m.RestartCompleted()
	m.BackendSpawned()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.restartsStarted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.restartsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.backendSpawns))
}

func TestNewRegistersMetricsOnPrivateRegistry(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
