// Package middleware provides cross-cutting concerns for the experiment
// engine: Prometheus metrics and OpenTelemetry tracing around units.
package middleware

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-rankagg/internal/ports"
)

// Metric names recognised by PrometheusMetrics.
const (
	MetricUnitDuration          = "rankagg_unit_duration_seconds"
	MetricUnitOperations        = "rankagg_unit_operations_total"
	MetricLossValue             = "rankagg_loss_value"
	MetricPlackettLuceIteration = "rankagg_plackett_luce_iterations"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks unit latency, outcome counts, the latest loss per
// metric and consensus, and Plackett-Luce iteration counts.
type PrometheusMetrics struct {
	unitDuration  *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	lossValue     *prometheus.GaugeVec
	plIterations  *prometheus.HistogramVec
	genericGauges *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer. Registration failures are
// reported as *ports.MetricsError wrapping ports.ErrMetricsUnavailable.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	pm := &PrometheusMetrics{
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricUnitDuration,
				Help:    "Execution time of experiment units.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricUnitOperations,
				Help: "Total number of unit operations by outcome.",
			},
			[]string{"operation", "status", "unit"},
		),
		lossValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricLossValue,
				Help: "Most recent aggregated loss per metric and scored consensus.",
			},
			[]string{"metric", "consensus", "unit"},
		),
		plIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPlackettLuceIteration,
				Help:    "Number of MM iterations used by Plackett-Luce training.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"unit"},
		),
		genericGauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rankagg_state",
				Help: "Miscellaneous experiment state values.",
			},
			[]string{"metric", "unit"},
		),
	}

	for _, c := range []prometheus.Collector{
		pm.unitDuration, pm.operations, pm.lossValue, pm.plIterations, pm.genericGauges,
	} {
		if err := reg.Register(c); err != nil {
			return nil, ports.NewMetricsError("prometheus", "register",
				fmt.Errorf("%w: %v", ports.ErrMetricsUnavailable, err))
		}
	}
	return pm, nil
}

func unitLabel(labels map[string]string) string {
	if unit, ok := labels["unit"]; ok && unit != "" {
		return unit
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.unitDuration.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface. The "status"
// label defaults to "success".
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	status := labels["status"]
	if status == "" {
		status = "success"
	}
	pm.operations.WithLabelValues(metric, status, unitLabel(labels)).Add(value)
}

// RecordGauge implements the MetricsCollector interface. Loss values are
// routed to the loss gauge keyed by the "metric" and "consensus" labels.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricLossValue:
		pm.lossValue.WithLabelValues(labels["metric"], labels["consensus"], unitLabel(labels)).Set(value)
	default:
		pm.genericGauges.WithLabelValues(metric, unitLabel(labels)).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface. Plackett-Luce
// iteration counts have a dedicated histogram; anything else is treated as
// a duration in seconds.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricPlackettLuceIteration:
		pm.plIterations.WithLabelValues(unitLabel(labels)).Observe(value)
	default:
		pm.unitDuration.WithLabelValues(metric, unitLabel(labels)).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
