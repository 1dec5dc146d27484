package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SamplesProcessed.Add(10)
	m.FramesDemodulated.WithLabelValues("downlink").Inc()
	m.AircraftTracked.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSamplesProcessedCounterValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SamplesProcessed.Add(5)

	var metric dto.Metric
	require.NoError(t, m.SamplesProcessed.Write(&metric))
	assert.Equal(t, 5.0, metric.GetCounter().GetValue())
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
