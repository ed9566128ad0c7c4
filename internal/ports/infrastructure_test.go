package ports

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockMetricsCollector implements MetricsCollector in memory.
type mockMetricsCollector struct {
	mu         sync.Mutex
	latencies  []time.Duration
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetricsCollector) RecordLatency(_ string, d time.Duration, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, d)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric] += value
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[metric] = append(m.histograms[metric], value)
}

func TestMetricsCollector_Recording(t *testing.T) {
	var _ MetricsCollector = (*mockMetricsCollector)(nil)

	metrics := newMockMetricsCollector()
	labels := map[string]string{"unit": "pl"}

	metrics.RecordLatency("unit.execute", 100*time.Millisecond, labels)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, metrics.latencies)

	metrics.RecordCounter("unit_operations", 1, labels)
	metrics.RecordCounter("unit_operations", 2, labels)
	assert.Equal(t, 3.0, metrics.counters["unit_operations"], "RecordCounter() sum mismatch")

	metrics.RecordGauge("loss_value", 0.8, labels)
	metrics.RecordGauge("loss_value", 0.5, labels)
	assert.Equal(t, 0.5, metrics.gauges["loss_value"], "RecordGauge() keeps the last value")

	metrics.RecordHistogram("plackett_luce_iterations", 12, labels)
	metrics.RecordHistogram("plackett_luce_iterations", 30, labels)
	assert.Equal(t, []float64{12, 30}, metrics.histograms["plackett_luce_iterations"])
}
