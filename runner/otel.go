package runner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/evalgate/evalgate/eval"
)

// OTelOptions enables OpenTelemetry observability for a run. Either field
// may be nil; a fully zero value disables instrumentation entirely.
type OTelOptions struct {
	// Tracer creates one span per completed case.
	Tracer trace.Tracer

	// MeterProvider is used to create the run's metric instruments:
	// evalgate.case.score (histogram), evalgate.case.duration (histogram)
	// and evalgate.case.count (counter).
	MeterProvider metric.MeterProvider
}

// instrumentation bundles the configured tracer and instruments. All
// methods are safe to call on a no-op instance.
type instrumentation struct {
	tracer            trace.Tracer
	scoreHistogram    metric.Float64Histogram
	durationHistogram metric.Float64Histogram
	caseCounter       metric.Int64Counter
}

func newInstrumentation(opts OTelOptions) (*instrumentation, error) {
	inst := &instrumentation{tracer: opts.Tracer}
	if opts.MeterProvider == nil {
		return inst, nil
	}

	meter := opts.MeterProvider.Meter("github.com/evalgate/evalgate/runner")
	var err error

	inst.scoreHistogram, err = meter.Float64Histogram(
		"evalgate.case.score",
		metric.WithDescription("Case score from 0.0 (worst) to 1.0 (best)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create score histogram: %w", err)
	}

	inst.durationHistogram, err = meter.Float64Histogram(
		"evalgate.case.duration",
		metric.WithDescription("Case target-invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	inst.caseCounter, err = meter.Int64Counter(
		"evalgate.case.count",
		metric.WithDescription("Number of cases evaluated"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create case counter: %w", err)
	}

	return inst, nil
}

// recordCase emits one span and one set of metric points for a completed
// case. Unconfigured instrumentation returns silently; observability must
// never break a run.
func (i *instrumentation) recordCase(ctx context.Context, result CaseResult) {
	if i.tracer != nil {
		var span trace.Span
		ctx, span = i.tracer.Start(ctx, "evalgate.case")
		span.SetAttributes(
			attribute.String("case.id", result.CaseID),
			attribute.String("run.id", result.RunID),
			attribute.Float64("case.score", result.Score),
			attribute.String("case.verdict", string(result.Verdict)),
			attribute.Int("case.attempts", result.Attempts),
			attribute.Float64("case.latency_ms", float64(result.LatencyMs)),
		)
		for _, ev := range result.Evaluations {
			span.SetAttributes(
				attribute.Float64(fmt.Sprintf("case.evaluator.%s.score", ev.Name), ev.Score),
			)
		}
		if result.Verdict == eval.VerdictFail {
			span.SetStatus(codes.Error, fmt.Sprintf("score %.3f", result.Score))
		} else {
			span.SetStatus(codes.Ok, fmt.Sprintf("score %.3f", result.Score))
		}
		if result.Error != "" {
			span.RecordError(fmt.Errorf("%s", result.Error))
		}
		span.End()
	}

	opts := metric.WithAttributes(
		attribute.String("case.id", result.CaseID),
		attribute.String("verdict", string(result.Verdict)),
	)
	if i.scoreHistogram != nil {
		i.scoreHistogram.Record(ctx, result.Score, opts)
		for _, ev := range result.Evaluations {
			i.scoreHistogram.Record(ctx, ev.Score, metric.WithAttributes(
				attribute.String("case.id", result.CaseID),
				attribute.String("evaluator", ev.Name),
			))
		}
	}
	if i.durationHistogram != nil {
		i.durationHistogram.Record(ctx, float64(result.LatencyMs), opts)
	}
	if i.caseCounter != nil {
		i.caseCounter.Add(ctx, 1, opts)
	}
}
