package hermes

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
// Vectors are created on first use and registered with the injected Registerer.
type PrometheusMetrics struct {
	registerer prometheus.Registerer
	help       map[string]string
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	mu         sync.RWMutex
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance. A nil registerer means
// prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		registerer: registerer,
		help:       make(map[string]string),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Describe sets the help text used when name is first registered.
func (m *PrometheusMetrics) Describe(name, help string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.help[name] = help
}

func (m *PrometheusMetrics) helpFor(name string) string {
	if h, ok := m.help[name]; ok {
		return h
	}
	return name
}

func labelKeys(labels []Label) []string {
	keys := make([]string, len(labels))
	for i, l := range labels {
		keys[i] = l.Key
	}
	return keys
}

func labelValues(labels []Label) []string {
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = l.Value
	}
	return values
}

// vector returns the vector registered under name, building it with the label keys of the
// first call. Later calls must pass the same label keys.
func vector[V prometheus.Collector](m *PrometheusMetrics, vecs map[string]V, name string, labels []Label, build func(help string, keys []string) V) V {
	m.mu.RLock()
	vec, ok := vecs[name]
	m.mu.RUnlock()
	if ok {
		return vec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if vec, ok = vecs[name]; !ok {
		vec = build(m.helpFor(name), labelKeys(labels))
		m.registerer.MustRegister(vec)
		vecs[name] = vec
	}
	return vec
}

func (m *PrometheusMetrics) IncCounter(name string, value float64, labels ...Label) {
	vec := vector(m, m.counters, name, labels, func(help string, keys []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, keys)
	})
	vec.WithLabelValues(labelValues(labels)...).Add(value)
}

func (m *PrometheusMetrics) ObserveHistogram(name string, value float64, labels ...Label) {
	vec := vector(m, m.histograms, name, labels, func(help string, keys []string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, keys)
	})
	vec.WithLabelValues(labelValues(labels)...).Observe(value)
}

func (m *PrometheusMetrics) SetGauge(name string, value float64, labels ...Label) {
	vec := vector(m, m.gauges, name, labels, func(help string, keys []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, keys)
	})
	vec.WithLabelValues(labelValues(labels)...).Set(value)
}
