package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry owns the runner's Prometheus registry and the vectors
// registered on it. Registration is idempotent, so each package declares
// the metrics it touches without coordinating with the others.
type MetricsRegistry struct {
	Registry *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	mu       sync.RWMutex
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		Registry: prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// NewCounter registers a counter vector, or returns the existing one.
func (m *MetricsRegistry) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, exists := m.counters[name]; exists {
		return c
	}

	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)

	m.Registry.MustRegister(c)
	m.counters[name] = c
	return c
}

// NewGauge registers a gauge vector, or returns the existing one.
func (m *MetricsRegistry) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, exists := m.gauges[name]; exists {
		return g
	}

	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)

	m.Registry.MustRegister(g)
	m.gauges[name] = g
	return g
}

// Counter returns the labeled counter for a registered name. Unknown names
// get a noop, so call sites never nil-check.
func (m *MetricsRegistry) Counter(name string, labels prometheus.Labels) prometheus.Counter {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()

	if !ok {
		return noopCounter
	}
	return c.With(labels)
}

// Gauge returns the labeled gauge for a registered name, or a noop.
func (m *MetricsRegistry) Gauge(name string, labels prometheus.Labels) prometheus.Gauge {
	m.mu.RLock()
	g, ok := m.gauges[name]
	m.mu.RUnlock()

	if !ok {
		return noopGauge
	}
	return g.With(labels)
}

// The noops are ordinary metrics that are never registered anywhere: they
// accept writes and no gatherer ever sees them.
var (
	noopCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "devserve_noop_counter"})
	noopGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "devserve_noop_gauge"})
)
