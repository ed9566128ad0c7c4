package ports

import (
	"time"
)

// MetricsCollector receives operational metrics from instrumented units.
// The labels map always carries a "unit" entry naming the unit that
// produced the value; other entries depend on the metric.
type MetricsCollector interface {
	// RecordLatency records how long one operation of a unit took.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter adds value to a counter, such as successful or failed
	// unit executions. A "status" label distinguishes outcomes.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the latest value of a gauge, such as the loss a
	// metric assigned to a consensus.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram observes one sample of a distribution, such as the
	// number of optimiser iterations a training run needed.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
