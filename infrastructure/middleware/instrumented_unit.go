package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-rankagg/internal/domain"
	"github.com/ahrav/go-rankagg/internal/ports"
)

// TracerName is the instrumentation scope used when no tracer is supplied.
const TracerName = "github.com/ahrav/go-rankagg/infrastructure/middleware"

// UnitMiddleware decorates a unit with cross-cutting behavior.
type UnitMiddleware func(next ports.Unit) ports.Unit

var _ ports.Unit = (*InstrumentedUnit)(nil)

// InstrumentedUnit wraps a unit with an OpenTelemetry span per execution
// and reports latency, outcome counts, consensus details and new losses
// through a ports.MetricsCollector. Either side may be disabled: a nil
// collector skips metrics and a nil tracer falls back to the global
// provider.
type InstrumentedUnit struct {
	next    ports.Unit
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedUnit wraps next with tracing and metrics.
func NewInstrumentedUnit(next ports.Unit, metrics ports.MetricsCollector, tracer trace.Tracer) *InstrumentedUnit {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &InstrumentedUnit{next: next, metrics: metrics, tracer: tracer}
}

// Instrument returns a UnitMiddleware applying NewInstrumentedUnit.
func Instrument(metrics ports.MetricsCollector, tracer trace.Tracer) UnitMiddleware {
	return func(next ports.Unit) ports.Unit {
		return NewInstrumentedUnit(next, metrics, tracer)
	}
}

// Name returns the wrapped unit's name.
func (u *InstrumentedUnit) Name() string { return u.next.Name() }

// Validate delegates to the wrapped unit.
func (u *InstrumentedUnit) Validate() error { return u.next.Validate() }

// Unwrap returns the wrapped unit.
func (u *InstrumentedUnit) Unwrap() ports.Unit { return u.next }

// Execute runs the wrapped unit inside a span named "unit.Execute".
func (u *InstrumentedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := u.tracer.Start(ctx, "unit.Execute", trace.WithAttributes(
		attribute.String("unit.name", u.next.Name()),
	))
	defer span.End()

	if execCtx, ok := state.GetExecutionContext(); ok {
		span.SetAttributes(
			attribute.String("experiment.id", execCtx.ExperimentID),
			attribute.String("experiment.name", execCtx.ExperimentName),
			attribute.String("pipeline.id", execCtx.PipelineID),
		)
	}

	evalsBefore, _ := domain.Get(state, domain.KeyEvaluations)
	historyBefore, _ := domain.Get(state, domain.KeyConsensuses)

	start := time.Now()
	out, err := u.next.Execute(ctx, state)
	elapsed := time.Since(start)

	labels := map[string]string{"unit": u.next.Name()}
	if u.metrics != nil {
		u.metrics.RecordLatency("unit_execute", elapsed, labels)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.count("error")
		return out, err
	}

	history, _ := domain.Get(out, domain.KeyConsensuses)
	if len(history) > len(historyBefore) {
		u.recordConsensus(span, history[len(history)-1])
	}

	evals, _ := domain.Get(out, domain.KeyEvaluations)
	for _, ev := range evals[min(len(evalsBefore), len(evals)):] {
		u.recordEvaluation(span, ev)
	}

	span.SetStatus(codes.Ok, "")
	u.count("success")
	return out, nil
}

func (u *InstrumentedUnit) count(status string) {
	if u.metrics == nil {
		return
	}
	u.metrics.RecordCounter(MetricUnitOperations, 1, map[string]string{
		"unit":   u.next.Name(),
		"status": status,
	})
}

func (u *InstrumentedUnit) recordConsensus(span trace.Span, c *domain.Consensus) {
	if c == nil {
		return
	}
	span.AddEvent("consensus.produced", trace.WithAttributes(
		attribute.String("consensus.algorithm", c.Algorithm),
		attribute.String("consensus.ranking", c.Rendered),
		attribute.Int("consensus.labels", c.Ranking.Len()),
	))
	if c.Iterations > 0 {
		span.SetAttributes(attribute.Int("plackett_luce.iterations", c.Iterations))
		if u.metrics != nil {
			u.metrics.RecordHistogram(MetricPlackettLuceIteration, float64(c.Iterations),
				map[string]string{"unit": u.next.Name()})
		}
	}
}

func (u *InstrumentedUnit) recordEvaluation(span trace.Span, ev domain.Evaluation) {
	span.AddEvent("loss.computed", trace.WithAttributes(
		attribute.String("loss.metric", ev.Metric),
		attribute.String("loss.consensus", ev.Consensus),
		attribute.Float64("loss.value", ev.Value),
		attribute.Int("loss.pairs", ev.Pairs),
	))
	if u.metrics != nil {
		u.metrics.RecordGauge(MetricLossValue, ev.Value, map[string]string{
			"unit":      u.next.Name(),
			"metric":    ev.Metric,
			"consensus": ev.Consensus,
		})
	}
}
