package hermes

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)
	m.Describe("test_counter", "Counts test events.")

	m.IncCounter("test_counter", 1, Label{Key: "tag", Value: "A"})
	m.IncCounter("test_counter", 2, Label{Key: "tag", Value: "A"})

	m.ObserveHistogram("test_histogram", 0.5, Label{Key: "tag", Value: "B"})

	m.SetGauge("test_gauge", 10, Label{Key: "tag", Value: "C"})
	m.SetGauge("test_gauge", 20, Label{Key: "tag", Value: "C"})

	assert.Contains(t, m.counters, "test_counter")
	assert.Contains(t, m.histograms, "test_histogram")
	assert.Contains(t, m.gauges, "test_gauge")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
		switch f.GetName() {
		case "test_counter":
			assert.Equal(t, "Counts test events.", f.GetHelp())
			assert.Equal(t, 3.0, f.GetMetric()[0].GetCounter().GetValue())
		case "test_gauge":
			assert.Equal(t, 20.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.ElementsMatch(t, []string{"test_counter", "test_histogram", "test_gauge"}, names)
}

func TestPrometheusMetrics_SeparateRegistries(t *testing.T) {
	// The same metric name must be registrable on two independent registries.
	a := NewPrometheusMetrics(prometheus.NewRegistry())
	b := NewPrometheusMetrics(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		a.IncCounter("shared_total", 1)
		b.IncCounter("shared_total", 1)
	})
}
