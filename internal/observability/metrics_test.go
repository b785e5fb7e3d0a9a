package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistryCounter(t *testing.T) {
	m := NewMetricsRegistry()

	m.NewCounter("devserve_process_exits_total", "Process exits.", []string{"program"})
	m.Counter("devserve_process_exits_total", prometheus.Labels{"program": "python"}).Inc()
	m.Counter("devserve_process_exits_total", prometheus.Labels{"program": "python"}).Inc()

	got := testutilCounterValue(t, m, "devserve_process_exits_total",
		prometheus.Labels{"program": "python"})
	if got != 2 {
		t.Errorf("counter = %v, want 2", got)
	}
}

func TestMetricsRegistryIdempotentCreate(t *testing.T) {
	m := NewMetricsRegistry()

	a := m.NewGauge("devserve_processes_running", "Running processes.", []string{"program"})
	b := m.NewGauge("devserve_processes_running", "Running processes.", []string{"program"})
	if a != b {
		t.Error("expected the same GaugeVec on repeated creation")
	}
}

func TestMetricsRegistryUnknownNameIsNoop(t *testing.T) {
	m := NewMetricsRegistry()

	// Must not panic or register anything.
	m.Counter("never_created", nil).Inc()
	m.Gauge("never_created_either", nil).Set(3)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 0 {
		t.Errorf("expected empty registry, got %d families", len(families))
	}
}
